// Package evaluator implements AgentEvaluator (spec.md §4.5): a single
// bounded Chat call that judges whether the current retrieved context is
// sufficient, with an accept-and-repair JSON contract and documented
// coercion of out-of-range values. Grounded on internal/jsonrepair's
// accept-and-repair design note (SPEC_FULL.md §9) and the teacher's
// Chat-call idiom in internal/llm/provider.go. Named evaluator rather than
// agent to avoid colliding with the teacher's unrelated internal/agent
// multi-agent orchestration package (out of scope; see DESIGN.md).
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/jsonrepair"
	"github.com/vertigo15/docengine/internal/retrieve"
)

// Evaluator drives AgentEvaluator's single Chat call per iteration.
type Evaluator struct {
	Chat   capabilities.Chat
	Prompt string // loaded from MetaStore settings; empty uses the default.
}

func New(chat capabilities.Chat, prompt string) *Evaluator {
	return &Evaluator{Chat: chat, Prompt: prompt}
}

type decisionJSON struct {
	Decision     string  `json:"decision"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	RefinedQuery string  `json:"refined_query,omitempty"`
}

const defaultEvaluatorPrompt = `You are judging whether the retrieved context below is sufficient to answer the query. Respond ONLY with JSON: {"decision":"proceed|refine_query|expand_search","confidence":0.0-1.0,"reasoning":"...","refined_query":"..."}

Query: %s

Context:
%s`

// Evaluate implements the AgentEvaluator contract: call Chat (max_tokens
// 200, temperature 0.1), parse {decision, confidence, reasoning,
// refined_query?}, and coerce out-of-range values with a reasoning note.
// On parse failure, synthesize {decision: proceed, confidence: 0.5,
// reasoning: "parse_failed"}.
func (e *Evaluator) Evaluate(ctx context.Context, query string, retrieved []retrieve.RankedItem) docmodel.AgentEvaluation {
	user := fmt.Sprintf(defaultEvaluatorPrompt, query, renderContext(retrieved))
	if e.Prompt != "" {
		user = applyPlaceholders(e.Prompt, query, renderContext(retrieved))
	}

	raw, err := e.Chat.Complete(ctx, capabilities.ChatRequest{User: user, MaxTokens: 200, Temperature: 0.1, JSONMode: true})
	if err != nil {
		return docmodel.AgentEvaluation{
			Decision:   docmodel.DecisionProceed,
			Confidence: 0.5,
			Reasoning:  "parse_failed: chat error: " + err.Error(),
		}
	}

	var parsed decisionJSON
	if jerr := jsonrepair.Unmarshal(raw, &parsed); jerr != nil {
		return docmodel.AgentEvaluation{
			Decision:   docmodel.DecisionProceed,
			Confidence: 0.5,
			Reasoning:  "parse_failed",
		}
	}

	return coerce(parsed)
}

// coerce enforces decision ∈ {proceed, refine_query, expand_search} and
// 0 ≤ confidence ≤ 1, appending a note to reasoning for every field it had
// to correct (spec.md §4.5).
func coerce(p decisionJSON) docmodel.AgentEvaluation {
	out := docmodel.AgentEvaluation{
		Reasoning:    p.Reasoning,
		RefinedQuery: p.RefinedQuery,
	}

	var notes []string

	switch docmodel.AgentDecision(p.Decision) {
	case docmodel.DecisionProceed, docmodel.DecisionRefineQuery, docmodel.DecisionExpandSearch:
		out.Decision = docmodel.AgentDecision(p.Decision)
	default:
		out.Decision = docmodel.DecisionProceed
		notes = append(notes, fmt.Sprintf("decision %q coerced to proceed", p.Decision))
	}

	switch {
	case p.Confidence < 0:
		out.Confidence = 0
		notes = append(notes, "confidence coerced to 0 (was below range)")
	case p.Confidence > 1:
		out.Confidence = 1
		notes = append(notes, "confidence coerced to 1 (was above range)")
	default:
		out.Confidence = p.Confidence
	}

	// "refine_query with empty refined_query is equivalent to proceed"
	// (spec.md §8 boundary behaviors).
	if out.Decision == docmodel.DecisionRefineQuery && strings.TrimSpace(out.RefinedQuery) == "" {
		out.Decision = docmodel.DecisionProceed
		notes = append(notes, "refine_query with empty refined_query coerced to proceed")
	}

	if len(notes) > 0 {
		if out.Reasoning != "" {
			out.Reasoning += " "
		}
		out.Reasoning += "[" + strings.Join(notes, "; ") + "]"
	}
	return out
}

func renderContext(items []retrieve.RankedItem) string {
	var sb strings.Builder
	for i, it := range items {
		content, _ := it.Payload["content"].(string)
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, content)
	}
	return sb.String()
}

func applyPlaceholders(tmpl, query, context string) string {
	out := strings.ReplaceAll(tmpl, "{query}", query)
	out = strings.ReplaceAll(out, "{context}", context)
	return out
}
