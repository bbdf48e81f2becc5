// Package answer implements AnswerGenerator (spec.md §4.5): a single Chat
// call that produces a grounded answer with numbered inline citations
// [n], renumbered into first-appearance order and deduplicated against the
// reranked context the orchestrator supplied. Grounded on spec.md §4.5's
// numbered-citation contract; no direct teacher analogue exists (the
// teacher has no answer-citation component), so this is original logic
// written in the teacher's plain-struct-result idiom, using only
// internal/capabilities.Chat.
package answer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/retrieve"
)

// Generator drives AnswerGenerator's single Chat call and the citation
// renumbering pass that follows it.
type Generator struct {
	Chat   capabilities.Chat
	Prompt string // loaded from MetaStore settings; empty uses the default.
}

func New(chat capabilities.Chat, prompt string) *Generator {
	return &Generator{Chat: chat, Prompt: prompt}
}

const defaultAnswerPrompt = `Answer the query using only the numbered context below. Cite every supporting fact with its bracketed number, e.g. [1]. If the context does not contain the answer, say so plainly.

Query: %s

Context:
%s`

// Generate implements the AnswerGenerator contract: given (query,
// context=reranked[]), produce {answer, citations}. Citations are
// renumbered into first-appearance order in the returned text; duplicate
// references share one number; markers that don't resolve to a supplied
// context item are left untouched and contribute no citation (P8: every
// citation must reference a chunk present in the provided context).
func (g *Generator) Generate(ctx context.Context, query string, reranked []retrieve.RankedItem) (string, []docmodel.Citation, error) {
	renderedContext := "(no supporting context was retrieved)"
	if len(reranked) > 0 {
		renderedContext = renderNumberedContext(reranked)
	}

	user := fmt.Sprintf(defaultAnswerPrompt, query, renderedContext)
	if g.Prompt != "" {
		user = strings.ReplaceAll(g.Prompt, "{query}", query)
		user = strings.ReplaceAll(user, "{context}", renderedContext)
	}

	raw, err := g.Chat.Complete(ctx, capabilities.ChatRequest{User: user, MaxTokens: 1200, Temperature: 0.2})
	if err != nil {
		return "", nil, fmt.Errorf("answer: %w", err)
	}

	answerText, citations := renumberCitations(raw, reranked)
	return answerText, citations, nil
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// renumberCitations rewrites every [k] marker in raw (k being the 1-based
// index into reranked as presented to Chat) into a first-appearance
// sequence number, building the deduplicated, ordered Citation list.
// Markers whose k falls outside the supplied context are left as literal
// text and contribute no citation.
func renumberCitations(raw string, reranked []retrieve.RankedItem) (string, []docmodel.Citation) {
	assigned := map[int]int{} // original index -> new ordinal
	var citations []docmodel.Citation

	out := citationMarker.ReplaceAllStringFunc(raw, func(match string) string {
		sub := citationMarker.FindStringSubmatch(match)
		k, err := strconv.Atoi(sub[1])
		if err != nil || k < 1 || k > len(reranked) {
			return match
		}
		if newNum, ok := assigned[k]; ok {
			return fmt.Sprintf("[%d]", newNum)
		}
		newNum := len(citations) + 1
		assigned[k] = newNum
		citations = append(citations, citationFor(reranked[k-1], newNum))
		return fmt.Sprintf("[%d]", newNum)
	})

	return out, citations
}

func citationFor(item retrieve.RankedItem, ordinal int) docmodel.Citation {
	docID, _ := item.Payload["doc_id"].(string)
	docName, _ := item.Payload["document_name"].(string)
	var hierarchyPath []string
	if raw, ok := item.Payload["hierarchy_path"].([]string); ok {
		hierarchyPath = raw
	}
	var page *int
	if raw, ok := item.Payload["page_number"].(*int); ok {
		page = raw
	}
	return docmodel.Citation{
		DocumentID:    docID,
		DocumentName:  docName,
		HierarchyPath: hierarchyPath,
		PageNumber:    page,
		ChunkOrdinal:  ordinal,
	}
}

func renderNumberedContext(items []retrieve.RankedItem) string {
	var sb strings.Builder
	for i, it := range items {
		content, _ := it.Payload["content"].(string)
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, content)
	}
	return sb.String()
}
