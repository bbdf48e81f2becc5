// Package query implements QueryOrchestrator (spec.md §4.5): the bounded
// ≤3-iteration agentic loop (embed -> retrieve -> rerank -> evaluate),
// followed by a single grounded-answer generation pass, assembling the
// bit-exact DebugData contract of spec.md §3/§6. Grounded on
// internal/rag/service/service.go's Retrieve() iteration/debug-map
// assembly idiom, generalized to the bounded agentic loop.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vertigo15/docengine/internal/answer"
	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/evaluator"
	"github.com/vertigo15/docengine/internal/retrieve"
)

// Config bounds QueryOrchestrator behavior per spec.md §6 Settings keys.
type Config struct {
	MaxAgentIterations int
	DefaultTopK        int
	DefaultRerankTop   int
}

func (c Config) withDefaults() Config {
	if c.MaxAgentIterations <= 0 {
		c.MaxAgentIterations = 3
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 10
	}
	if c.DefaultRerankTop <= 0 {
		c.DefaultRerankTop = 5
	}
	return c
}

// Orchestrator wires together every query-pipeline collaborator.
type Orchestrator struct {
	Embedder  capabilities.Embedder
	Retriever *retrieve.Retriever
	Reranker  retrieve.Reranker
	Evaluator *evaluator.Evaluator
	Generator *answer.Generator
	Meta      capabilities.MetaStore
	Cfg       Config
}

func New(embedder capabilities.Embedder, retriever *retrieve.Retriever, reranker retrieve.Reranker, eval *evaluator.Evaluator, gen *answer.Generator, meta capabilities.MetaStore, cfg Config) *Orchestrator {
	return &Orchestrator{
		Embedder:  embedder,
		Retriever: retriever,
		Reranker:  reranker,
		Evaluator: eval,
		Generator: gen,
		Meta:      meta,
		Cfg:       cfg.withDefaults(),
	}
}

// Answer implements answer(QueryJob) -> QueryResult.
func (o *Orchestrator) Answer(ctx context.Context, job docmodel.QueryJob) (*docmodel.QueryResult, error) {
	totalStart := time.Now()

	currentQuery := job.QueryText
	currentTopK := o.Cfg.DefaultTopK
	docFilter := job.DocumentFilter

	var iterations []docmodel.Iteration
	var timing docmodel.Timing
	var lastReranked []retrieve.RankedItem

	for i := 0; i < o.Cfg.MaxAgentIterations; i++ {
		iterStart := time.Now()

		embedStart := time.Now()
		vectors, err := o.Embedder.Embed(ctx, []string{currentQuery})
		timing.EmbeddingMs += time.Since(embedStart).Milliseconds()
		if err != nil {
			return o.fail(ctx, job, iterations, timing, fmt.Errorf("query: embed: %w", err))
		}
		var embedding []float32
		if len(vectors) > 0 {
			embedding = vectors[0]
		}

		searchStart := time.Now()
		candidates, sourceCounts, afterMerge, err := o.Retriever.Search(ctx, currentQuery, embedding, currentTopK, docFilter)
		timing.SearchMs += time.Since(searchStart).Milliseconds()
		if err != nil {
			return o.fail(ctx, job, iterations, timing, fmt.Errorf("query: retrieve: %w", err))
		}

		rerankStart := time.Now()
		topCandidates := retrieve.TopN(candidates, o.Cfg.DefaultRerankTop)
		ranked, err := o.Reranker.Rerank(ctx, currentQuery, topCandidates)
		timing.RerankMs += time.Since(rerankStart).Milliseconds()
		rerankFellBack := false
		if err != nil {
			log.Warn().Err(err).Str("query_id", job.QueryID).Int("iteration", i+1).Msg("query_rerank_failed_falling_back")
			ranked, _ = retrieve.NoopReranker{}.Rerank(ctx, currentQuery, topCandidates)
			rerankFellBack = true
		}
		lastReranked = ranked

		agentStart := time.Now()
		evaluation := o.Evaluator.Evaluate(ctx, currentQuery, ranked)
		timing.AgentMs += time.Since(agentStart).Milliseconds()
		if rerankFellBack {
			evaluation.Reasoning = appendReasoningMarker(evaluation.Reasoning, "rerank_fallback")
		}

		iterations = append(iterations, docmodel.Iteration{
			IterationNumber: i + 1,
			QueryUsed:       currentQuery,
			SearchSources: docmodel.SearchSources{
				VectorChunks:    sourceCounts.VectorChunks,
				VectorSummaries: sourceCounts.VectorSummaries,
				VectorQA:        sourceCounts.VectorQA,
				KeywordBM25:     sourceCounts.KeywordBM25,
				AfterMerge:      afterMerge,
			},
			ChunksBeforeRerank: candidatesToChunkResults(candidates),
			ChunksAfterRerank:  rankedToChunkResults(ranked),
			AgentEvaluation:    evaluation,
			DurationMs:         time.Since(iterStart).Milliseconds(),
		})

		isLastIteration := i == o.Cfg.MaxAgentIterations-1
		if evaluation.Decision == docmodel.DecisionProceed || isLastIteration {
			break
		}

		switch evaluation.Decision {
		case docmodel.DecisionRefineQuery:
			// Evaluator already coerces an empty refined_query to
			// proceed (spec.md §8 boundary behavior), so RefinedQuery is
			// guaranteed non-empty here.
			currentQuery = evaluation.RefinedQuery
		case docmodel.DecisionExpandSearch:
			nextTopK := currentTopK * 2
			if cap := o.Cfg.DefaultTopK * 4; nextTopK > cap {
				nextTopK = cap
			}
			currentTopK = nextTopK
			docFilter = nil
		}
	}

	genStart := time.Now()
	answerText, citations, err := o.Generator.Generate(ctx, currentQuery, lastReranked)
	timing.GenerationMs += time.Since(genStart).Milliseconds()
	if err != nil {
		return o.fail(ctx, job, iterations, timing, fmt.Errorf("query: generate: %w", err))
	}
	timing.TotalMs = time.Since(totalStart).Milliseconds()

	result := &docmodel.QueryResult{
		QueryID:         job.QueryID,
		Answer:          &answerText,
		Citations:       citations,
		ConfidenceScore: lastConfidence(iterations),
		TotalTimeMs:     timing.TotalMs,
		IterationCount:  len(iterations),
	}
	if job.DebugMode {
		result.DebugData = &docmodel.DebugData{Iterations: iterations, Timing: timing}
	}

	if err := o.Meta.PutQueryResult(ctx, result); err != nil {
		return nil, fmt.Errorf("query: persist result: %w", err)
	}
	return result, nil
}

// fail persists the terminal failure shape documented in spec.md §4.5:
// answer=null, error_message set, iteration_count = iterations completed,
// debug_data up to the failing iteration.
func (o *Orchestrator) fail(ctx context.Context, job docmodel.QueryJob, iterations []docmodel.Iteration, timing docmodel.Timing, cause error) (*docmodel.QueryResult, error) {
	timing.TotalMs = 0
	result := &docmodel.QueryResult{
		QueryID:        job.QueryID,
		Answer:         nil,
		IterationCount: len(iterations),
		ErrorMessage:   cause.Error(),
	}
	if job.DebugMode {
		result.DebugData = &docmodel.DebugData{Iterations: iterations, Timing: timing}
	}
	if putErr := o.Meta.PutQueryResult(ctx, result); putErr != nil {
		log.Error().Err(putErr).Str("query_id", job.QueryID).Msg("query_failure_persist_error")
	}
	return result, cause
}

// appendReasoningMarker appends a degradation marker to an iteration's
// agent_evaluation.reasoning, per the transient-reranker-failure recovery
// path of spec.md §4.5: candidates pass through in original order with
// score_change=0, and the marker records that the fallback happened.
func appendReasoningMarker(reasoning, marker string) string {
	if reasoning == "" {
		return marker
	}
	return reasoning + " [" + marker + "]"
}

func lastConfidence(iterations []docmodel.Iteration) float64 {
	if len(iterations) == 0 {
		return 0
	}
	return iterations[len(iterations)-1].AgentEvaluation.Confidence
}

const previewLength = 200

func preview(content string) string {
	if len(content) <= previewLength {
		return content
	}
	return content[:previewLength]
}

func section(payload map[string]any) string {
	path, _ := payload["hierarchy_path"].([]string)
	return strings.Join(path, " > ")
}

func candidatesToChunkResults(candidates []retrieve.Candidate) []docmodel.ChunkResult {
	out := make([]docmodel.ChunkResult, len(candidates))
	for i, c := range candidates {
		content, _ := c.Payload["content"].(string)
		out[i] = docmodel.ChunkResult{
			ID:      c.ChunkID,
			Score:   c.Score,
			Source:  c.Collection,
			Section: section(c.Payload),
			Preview: preview(content),
		}
	}
	return out
}

func rankedToChunkResults(items []retrieve.RankedItem) []docmodel.ChunkResult {
	out := make([]docmodel.ChunkResult, len(items))
	for i, it := range items {
		content, _ := it.Payload["content"].(string)
		scoreChange := it.ScoreChange
		out[i] = docmodel.ChunkResult{
			ID:          it.ChunkID,
			Score:       it.Score,
			Source:      it.Collection,
			Section:     section(it.Payload),
			Preview:     preview(content),
			ScoreChange: &scoreChange,
		}
	}
	return out
}
