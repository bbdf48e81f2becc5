package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertigo15/docengine/internal/answer"
	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/evaluator"
	"github.com/vertigo15/docengine/internal/retrieve"
)

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f fakeEmbedder) Dimension() int { return 3 }

// recordingIndex tracks every DenseSearch topK argument it receives, and
// always returns one hit so the pipeline has something to rerank/evaluate.
type recordingIndex struct {
	mu         *sync.Mutex
	denseTopKs *[]int
}

func (r recordingIndex) Upsert(context.Context, []capabilities.VectorRecord) error { return nil }
func (r recordingIndex) DeleteByDoc(context.Context, string) error                 { return nil }
func (r recordingIndex) DenseSearch(_ context.Context, _ []float32, topK int, _ map[string]string) ([]capabilities.VectorHit, error) {
	r.mu.Lock()
	*r.denseTopKs = append(*r.denseTopKs, topK)
	r.mu.Unlock()
	return []capabilities.VectorHit{{ChunkID: "c1", Score: 0.9, Payload: map[string]any{"doc_id": "doc-1", "content": "fact one"}}}, nil
}
func (r recordingIndex) LexicalSearch(context.Context, string, int, map[string]string) ([]capabilities.VectorHit, error) {
	return nil, nil
}

func newTestRetriever() (*retrieve.Retriever, *[]int) {
	var topKs []int
	idx := recordingIndex{mu: &sync.Mutex{}, denseTopKs: &topKs}
	indexes := map[string]capabilities.VectorIndex{
		docmodel.CollectionChunks:     idx,
		docmodel.CollectionSummaries:  idx,
		docmodel.CollectionQA:         idx,
	}
	return retrieve.NewRetriever(indexes, 60), &topKs
}

// queuedChat returns one scripted body per call, in order; the last body
// repeats once the queue is exhausted.
type queuedChat struct {
	bodies []string
	calls  int
}

func (q *queuedChat) Complete(context.Context, capabilities.ChatRequest) (string, error) {
	i := q.calls
	if i >= len(q.bodies) {
		i = len(q.bodies) - 1
	}
	q.calls++
	return q.bodies[i], nil
}

type erroringChat struct{ err error }

func (e erroringChat) Complete(context.Context, capabilities.ChatRequest) (string, error) {
	return "", e.err
}

type fakeMetaStore struct {
	saved []*docmodel.QueryResult
}

func (f *fakeMetaStore) GetDocument(context.Context, string) (*docmodel.Document, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeMetaStore) PutDocument(context.Context, *docmodel.Document) error { return nil }
func (f *fakeMetaStore) GetSetting(context.Context, string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeMetaStore) PutSetting(context.Context, string, string) error { return nil }
func (f *fakeMetaStore) PutQueryResult(_ context.Context, result *docmodel.QueryResult) error {
	f.saved = append(f.saved, result)
	return nil
}

func proceedJSON() string {
	return `{"decision":"proceed","confidence":0.9,"reasoning":"enough context"}`
}

func refineJSON(refined string) string {
	return fmt.Sprintf(`{"decision":"refine_query","confidence":0.4,"reasoning":"need more","refined_query":%q}`, refined)
}

func expandJSON() string {
	return `{"decision":"expand_search","confidence":0.3,"reasoning":"too narrow"}`
}

func newOrchestrator(evalChat capabilities.Chat, meta *fakeMetaStore) (*Orchestrator, *[]int) {
	retriever, topKs := newTestRetriever()
	eval := evaluator.New(evalChat, "")
	gen := answer.New(&queuedChat{bodies: []string{"Final answer [1]."}}, "")
	o := New(fakeEmbedder{}, retriever, retrieve.NoopReranker{}, eval, gen, meta, Config{
		MaxAgentIterations: 3,
		DefaultTopK:        10,
		DefaultRerankTop:   5,
	})
	return o, topKs
}

func TestAnswer_ProceedBreaksAfterFirstIteration(t *testing.T) {
	meta := &fakeMetaStore{}
	o, _ := newOrchestrator(&queuedChat{bodies: []string{proceedJSON()}}, meta)

	result, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q1", QueryText: "what happened"})
	require.NoError(t, err)
	require.Equal(t, 1, result.IterationCount)
	require.NotNil(t, result.Answer)
	require.Len(t, meta.saved, 1)
}

func TestAnswer_BoundedAtMaxIterations(t *testing.T) {
	meta := &fakeMetaStore{}
	o, _ := newOrchestrator(&queuedChat{bodies: []string{expandJSON(), expandJSON(), expandJSON()}}, meta)

	result, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q2", QueryText: "q", DebugMode: true})
	require.NoError(t, err)
	require.Equal(t, 3, result.IterationCount)
	require.LessOrEqual(t, result.IterationCount, o.Cfg.MaxAgentIterations)
	require.Len(t, result.DebugData.Iterations, 3)
}

func TestAnswer_RefineQueryUsesRefinedQueryNextIteration(t *testing.T) {
	meta := &fakeMetaStore{}
	o, _ := newOrchestrator(&queuedChat{bodies: []string{refineJSON("a better query"), proceedJSON()}}, meta)

	result, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q3", QueryText: "original", DebugMode: true})
	require.NoError(t, err)
	require.Equal(t, 2, result.IterationCount)
	require.Equal(t, "original", result.DebugData.Iterations[0].QueryUsed)
	require.Equal(t, "a better query", result.DebugData.Iterations[1].QueryUsed)
}

func TestAnswer_ExpandSearchDoublesTopKAndCapsAtFourTimesDefault(t *testing.T) {
	meta := &fakeMetaStore{}
	o, topKs := newOrchestrator(&queuedChat{bodies: []string{expandJSON(), expandJSON(), expandJSON()}}, meta)

	_, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q4", QueryText: "q"})
	require.NoError(t, err)

	// Each iteration issues dense searches across 3 collections; topK is
	// constant within an iteration, so keep every third entry.
	var perIteration []int
	for i, k := range *topKs {
		if i%3 == 0 {
			perIteration = append(perIteration, k)
		}
	}
	require.Equal(t, []int{10, 20, 40}, perIteration)
}

func TestAnswer_DebugModeFalseOmitsDebugData(t *testing.T) {
	meta := &fakeMetaStore{}
	o, _ := newOrchestrator(&queuedChat{bodies: []string{proceedJSON()}}, meta)

	result, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q5", QueryText: "q", DebugMode: false})
	require.NoError(t, err)
	require.Nil(t, result.DebugData)
}

func TestAnswer_EmbedErrorPersistsTerminalFailure(t *testing.T) {
	meta := &fakeMetaStore{}
	retriever, _ := newTestRetriever()
	eval := evaluator.New(&queuedChat{bodies: []string{proceedJSON()}}, "")
	gen := answer.New(&queuedChat{bodies: []string{"unused"}}, "")
	o := New(fakeEmbedder{err: errors.New("embedding backend down")}, retriever, retrieve.NoopReranker{}, eval, gen, meta, Config{})

	result, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q6", QueryText: "q"})
	require.Error(t, err)
	require.Nil(t, result.Answer)
	require.Equal(t, 0, result.IterationCount)
	require.NotEmpty(t, result.ErrorMessage)
	require.Len(t, meta.saved, 1)
	require.Equal(t, "q6", meta.saved[0].QueryID)
}

func TestAnswer_AnswerUsesLastIterationRerankedContext(t *testing.T) {
	meta := &fakeMetaStore{}
	o, _ := newOrchestrator(&queuedChat{bodies: []string{proceedJSON()}}, meta)

	result, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q7", QueryText: "q"})
	require.NoError(t, err)
	require.NotNil(t, result.Answer)
	require.Contains(t, *result.Answer, "Final answer")
	require.Len(t, result.Citations, 1)
}

type failingReranker struct{ err error }

func (f failingReranker) Rerank(context.Context, string, []retrieve.Candidate) ([]retrieve.RankedItem, error) {
	return nil, f.err
}

func TestAnswer_RerankFailureFallsBackInsteadOfFailing(t *testing.T) {
	meta := &fakeMetaStore{}
	retriever, _ := newTestRetriever()
	eval := evaluator.New(&queuedChat{bodies: []string{proceedJSON()}}, "")
	gen := answer.New(&queuedChat{bodies: []string{"Final answer [1]."}}, "")
	o := New(fakeEmbedder{}, retriever, failingReranker{err: errors.New("reranker backend down")}, eval, gen, meta, Config{
		MaxAgentIterations: 3,
		DefaultTopK:        10,
		DefaultRerankTop:   5,
	})

	result, err := o.Answer(context.Background(), docmodel.QueryJob{QueryID: "q8", QueryText: "q", DebugMode: true})
	require.NoError(t, err)
	require.NotNil(t, result.Answer)
	require.Equal(t, 1, result.IterationCount)

	iter := result.DebugData.Iterations[0]
	require.Contains(t, iter.AgentEvaluation.Reasoning, "rerank_fallback")
	require.Len(t, iter.ChunksAfterRerank, 1)
	require.NotNil(t, iter.ChunksAfterRerank[0].ScoreChange)
	require.Equal(t, 0.0, *iter.ChunksAfterRerank[0].ScoreChange)
}

var _ capabilities.Chat = (*erroringChat)(nil)
