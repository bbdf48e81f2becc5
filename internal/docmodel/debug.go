package docmodel

// AgentDecision is the AgentEvaluator's bounded decision space.
type AgentDecision string

const (
	DecisionProceed      AgentDecision = "proceed"
	DecisionRefineQuery   AgentDecision = "refine_query"
	DecisionExpandSearch AgentDecision = "expand_search"
)

// SearchSources is the per-iteration retrieval count breakdown, all fields
// non-negative (spec.md §3).
type SearchSources struct {
	VectorChunks    int `json:"vector_chunks"`
	VectorSummaries int `json:"vector_summaries"`
	VectorQA        int `json:"vector_qa"`
	KeywordBM25     int `json:"keyword_bm25"`
	AfterMerge      int `json:"after_merge"`
}

// ChunkResult is one entry in chunks_before_rerank / chunks_after_rerank.
// ScoreChange is only set on the after-rerank list.
type ChunkResult struct {
	ID          string   `json:"id"`
	Score       float64  `json:"score"`
	Source      string   `json:"source"`
	Section     string   `json:"section"`
	Preview     string   `json:"preview"`
	ScoreChange *float64 `json:"score_change,omitempty"`
}

// AgentEvaluation is the parsed-and-repaired output of one AgentEvaluator
// call.
type AgentEvaluation struct {
	Decision     AgentDecision `json:"decision"`
	Confidence   float64       `json:"confidence"`
	Reasoning    string        `json:"reasoning"`
	RefinedQuery string        `json:"refined_query,omitempty"`
}

// Iteration is one pass of the QueryOrchestrator's bounded loop.
type Iteration struct {
	IterationNumber   int             `json:"iteration_number"`
	QueryUsed         string          `json:"query_used"`
	SearchSources     SearchSources   `json:"search_sources"`
	ChunksBeforeRerank []ChunkResult  `json:"chunks_before_rerank"`
	ChunksAfterRerank  []ChunkResult  `json:"chunks_after_rerank"`
	AgentEvaluation   AgentEvaluation `json:"agent_evaluation"`
	DurationMs        int64           `json:"duration_ms"`
}

// Timing accumulates per-stage durations across all iterations of one
// query, plus the single AnswerGenerator call and the overall wall time.
type Timing struct {
	EmbeddingMs  int64 `json:"embedding_ms"`
	SearchMs     int64 `json:"search_ms"`
	RerankMs     int64 `json:"rerank_ms"`
	AgentMs      int64 `json:"agent_ms"`
	GenerationMs int64 `json:"generation_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// DebugData is the deterministic, UI-facing record of a query's execution.
// Its JSON shape must round-trip without field renames (spec.md §3, §6,
// §8 "DebugData -> JSON -> DebugData is the identity").
type DebugData struct {
	Iterations []Iteration `json:"iterations"`
	Timing     Timing      `json:"timing"`
}
