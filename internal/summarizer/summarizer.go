// Package summarizer implements Summarizer and QAGenerator (spec.md §4.3):
// deterministic single-vs-map_reduce method selection, a bounded-
// concurrency MAP phase with deterministic index-based REDUCE reassembly,
// and structured-JSON Q&A synthesis. Grounded on
// internal/rag/service/service.go's stage-timing idiom and
// internal/llm/embeddings.go's bounded-concurrency-of-5 semaphore pattern
// (sem := make(chan struct{}, 5)), adapted from embeddings to Chat calls.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/jsonrepair"
)

// Config bounds Summarizer behavior per spec.md §6 Settings keys.
type Config struct {
	ShortDocThreshold int
	MaxSectionSize    int
	MinSectionSize    int
	MaxConcurrent     int

	// PromptSummary/PromptQA are loaded from MetaStore settings when
	// present (spec.md §4.3); empty means "use the built-in default."
	PromptSummary string
	PromptQA      string
}

// candidate is one MAP-phase section, ordered as produced by split().
type candidate struct {
	title   string
	content string
}

// Summarizer drives the map-reduce summarization pipeline over a
// DocumentTree.
type Summarizer struct {
	Chat capabilities.Chat
	Cfg  Config
}

func New(chat capabilities.Chat, cfg Config) *Summarizer {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.ShortDocThreshold <= 0 {
		cfg.ShortDocThreshold = 12000
	}
	if cfg.MaxSectionSize <= 0 {
		cfg.MaxSectionSize = 15000
	}
	if cfg.MinSectionSize <= 0 {
		cfg.MinSectionSize = 500
	}
	return &Summarizer{Chat: chat, Cfg: cfg}
}

// Summarize implements Summarizer.summarize(tree) -> DocumentSummaries
// (spec.md §4.3), selecting single vs. map_reduce by the document's total
// character length against ShortDocThreshold (boundary behaviors: exactly
// at the threshold is "single").
func (s *Summarizer) Summarize(ctx context.Context, tree *docmodel.Tree, docTitle string) (docmodel.DocumentSummaries, error) {
	text := tree.FullText()
	if len(text) <= s.Cfg.ShortDocThreshold {
		summary, err := s.callSummaryPrompt(ctx, docTitle, text)
		if err != nil {
			return docmodel.DocumentSummaries{}, fmt.Errorf("summarizer: single method: %w", err)
		}
		return docmodel.DocumentSummaries{
			DocumentSummary:  summary,
			SectionSummaries: []docmodel.SectionSummary{},
			Method:           docmodel.MethodSingle,
			SectionsCount:    0,
		}, nil
	}
	return s.mapReduce(ctx, tree, docTitle, text)
}

func (s *Summarizer) mapReduce(ctx context.Context, tree *docmodel.Tree, docTitle, fullText string) (docmodel.DocumentSummaries, error) {
	cands := s.split(tree, fullText)

	sectionSummaries := make([]docmodel.SectionSummary, len(cands))
	errs := make([]error, len(cands))

	sem := make(chan struct{}, s.Cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, c := range cands {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, c candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			summary, err := s.callSectionPrompt(ctx, docTitle, c.title, c.content)
			if err != nil {
				errs[i] = err
				return
			}
			sectionSummaries[i] = docmodel.SectionSummary{
				Title:          c.title,
				SummaryText:    summary,
				OriginalLength: len(c.content),
			}
		}(i, c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return docmodel.DocumentSummaries{}, fmt.Errorf("summarizer: map phase: %w", err)
		}
	}

	docSummary, err := s.callReducePrompt(ctx, docTitle, sectionSummaries)
	if err != nil {
		return docmodel.DocumentSummaries{}, fmt.Errorf("summarizer: reduce phase: %w", err)
	}

	return docmodel.DocumentSummaries{
		DocumentSummary:  docSummary,
		SectionSummaries: sectionSummaries,
		Method:           docmodel.MethodMapReduce,
		SectionsCount:    len(sectionSummaries),
	}, nil
}

// split implements the SPLIT step of spec.md §4.3: use direct-child
// sections when present (skipping undersized ones, splitting oversized
// ones on paragraph boundaries into "<title> (Part k)"), else fall back to
// size-based paragraph accumulation over the flat text.
func (s *Summarizer) split(tree *docmodel.Tree, fullText string) []candidate {
	sections := tree.DirectChildSections()
	if len(sections) > 0 {
		var out []candidate
		for _, idx := range sections {
			title := tree.Nodes[idx].Title
			content := tree.SectionText(idx)
			if len(content) < s.Cfg.MinSectionSize {
				continue
			}
			if len(content) <= s.Cfg.MaxSectionSize {
				out = append(out, candidate{title: title, content: content})
				continue
			}
			out = append(out, splitOversized(title, content, s.Cfg.MaxSectionSize)...)
		}
		if len(out) > 0 {
			return out
		}
	}
	return sizeBasedSplit(fullText, s.Cfg.MaxSectionSize)
}

func splitOversized(title, content string, maxSize int) []candidate {
	paras := strings.Split(content, "\n\n")
	var out []candidate
	var cur strings.Builder
	part := 1
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		out = append(out, candidate{title: fmt.Sprintf("%s (Part %d)", title, part), content: cur.String()})
		part++
		cur.Reset()
	}
	for _, p := range paras {
		if cur.Len() > 0 && cur.Len()+len(p)+2 > maxSize {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()
	return out
}

func sizeBasedSplit(text string, maxSize int) []candidate {
	paras := strings.Split(text, "\n\n")
	var out []candidate
	var cur strings.Builder
	k := 1
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		out = append(out, candidate{title: fmt.Sprintf("Section %d", k), content: cur.String()})
		k++
		cur.Reset()
	}
	for _, p := range paras {
		if cur.Len() > 0 && cur.Len()+len(p)+2 > maxSize {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()
	return out
}

const defaultSummaryPrompt = `Summarize the following document titled "%s" concisely.

%s`

const defaultSectionPrompt = `Summarize the following section ("%s") of a document titled "%s" concisely.

%s`

const defaultReducePrompt = `Combine the following section summaries of a document titled "%s" into one cohesive document summary.

%s`

func (s *Summarizer) callSummaryPrompt(ctx context.Context, docTitle, content string) (string, error) {
	user := fmt.Sprintf(defaultSummaryPrompt, docTitle, content)
	if s.Cfg.PromptSummary != "" {
		user = applyPlaceholders(s.Cfg.PromptSummary, map[string]string{
			"document_title":   docTitle,
			"document_content": content,
		})
	}
	return s.Chat.Complete(ctx, capabilities.ChatRequest{User: user, MaxTokens: 1000, Temperature: 0.3})
}

func (s *Summarizer) callSectionPrompt(ctx context.Context, docTitle, sectionTitle, content string) (string, error) {
	user := fmt.Sprintf(defaultSectionPrompt, sectionTitle, docTitle, content)
	return s.Chat.Complete(ctx, capabilities.ChatRequest{User: user, MaxTokens: 400, Temperature: 0.3})
}

func (s *Summarizer) callReducePrompt(ctx context.Context, docTitle string, sections []docmodel.SectionSummary) (string, error) {
	var sb strings.Builder
	for _, sec := range sections {
		sb.WriteString(sec.Title)
		sb.WriteString(" -> ")
		sb.WriteString(sec.SummaryText)
		sb.WriteString("\n")
	}
	user := fmt.Sprintf(defaultReducePrompt, docTitle, sb.String())
	return s.Chat.Complete(ctx, capabilities.ChatRequest{User: user, MaxTokens: 1000, Temperature: 0.3})
}

// applyPlaceholders substitutes named placeholders in a user-supplied
// template; unknown placeholders are left literal (spec.md §4.3).
func applyPlaceholders(tmpl string, values map[string]string) string {
	out := tmpl
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// qaEnvelope is the structured-JSON shape requested from Chat.
type qaEnvelope struct {
	QAPairs []qaPairJSON `json:"qa_pairs"`
}

type qaPairJSON struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Type     string `json:"type"`
}

// QAGenerator synthesizes Q&A pairs via one structured Chat call.
type QAGenerator struct {
	Chat   capabilities.Chat
	Prompt string // loaded from MetaStore settings; empty uses the default.
}

func NewQAGenerator(chat capabilities.Chat, prompt string) *QAGenerator {
	return &QAGenerator{Chat: chat, Prompt: prompt}
}

const defaultQAPrompt = `Generate %d diverse question/answer pairs covering the document titled "%s" below. Respond ONLY with JSON: {"qa_pairs":[{"question":"...","answer":"...","type":"factual|overview|procedural|comparison|reasoning"}]}

%s`

// Generate implements QAGenerator.generate(tree, n) (spec.md §4.3):
// malformed items are discarded; fewer than 1 surviving pair is not a
// failure.
func (g *QAGenerator) Generate(ctx context.Context, docTitle, content string, n int) ([]docmodel.QAPair, error) {
	user := fmt.Sprintf(defaultQAPrompt, n, docTitle, content)
	if g.Prompt != "" {
		user = applyPlaceholders(g.Prompt, map[string]string{
			"document_title":   docTitle,
			"document_content": content,
			"num_questions":    fmt.Sprintf("%d", n),
		})
	}
	raw, err := g.Chat.Complete(ctx, capabilities.ChatRequest{User: user, MaxTokens: 1500, Temperature: 0.5, JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("qa_generator: %w", err)
	}

	var env qaEnvelope
	if err := jsonrepair.Unmarshal(raw, &env); err != nil {
		// SchemaViolation in QAGenerator: zero pairs is not a failure
		// (spec.md §7).
		return nil, nil
	}

	out := make([]docmodel.QAPair, 0, len(env.QAPairs))
	for _, p := range env.QAPairs {
		if strings.TrimSpace(p.Question) == "" || strings.TrimSpace(p.Answer) == "" {
			continue
		}
		out = append(out, docmodel.QAPair{
			Question: p.Question,
			Answer:   p.Answer,
			Type:     docmodel.NormalizeQAType(p.Type),
		})
	}
	return out, nil
}
