package retrieve

import "context"

// RankedItem is a Candidate after reranking, carrying the score-delta
// contract of spec.md §4.5 (P6: ScoreChange == Score - PriorScore).
type RankedItem struct {
	Candidate
	PriorScore  float64
	ScoreChange float64
}

// Reranker rescores the top-N candidates. Implementations must be
// monotone-rescoring and honor the score_change contract; the model family
// (LLM vs. cross-encoder) is left to the adapter (spec.md §9 Open
// Questions). Grounded on internal/rag/retrieve/rerank.go's Reranker
// interface.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []Candidate) ([]RankedItem, error)
}

// NoopReranker passes candidates through unchanged, with score_change=0.
// The default when no reranking adapter is configured.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _ string, items []Candidate) ([]RankedItem, error) {
	out := make([]RankedItem, len(items))
	for i, c := range items {
		out[i] = RankedItem{Candidate: c, PriorScore: c.Score, ScoreChange: 0}
	}
	return out, nil
}

// TopN truncates items to at most n entries.
func TopN(items []Candidate, n int) []Candidate {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[:n]
}
