package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/testutil"
)

// A lexical hit ranked 5th must contribute 1/(k+5), not the same
// 1/(k+1) weight as a rank-1 hit — each collection's lexical list is a
// ranked list in its own right, same as the dense lists.
func TestFuseRRF_LexicalContributionUsesPerListRank(t *testing.T) {
	t.Parallel()

	const k = 60
	lexical := map[string][]capabilities.VectorHit{
		docmodel.CollectionChunks: {
			{ChunkID: "c-rank1", Payload: map[string]any{"doc_id": "d1"}},
			{ChunkID: "c-rank2", Payload: map[string]any{"doc_id": "d1"}},
			{ChunkID: "c-rank3", Payload: map[string]any{"doc_id": "d1"}},
			{ChunkID: "c-rank4", Payload: map[string]any{"doc_id": "d1"}},
			{ChunkID: "c-rank5", Payload: map[string]any{"doc_id": "d1"}},
		},
	}

	out, afterMerge := fuseRRF(map[string][]capabilities.VectorHit{}, lexical, k, nil)
	require.Equal(t, 5, afterMerge)

	scoreByID := map[string]float64{}
	for _, c := range out {
		scoreByID[c.ChunkID] = c.Score
	}

	require.InDelta(t, 1.0/float64(k+1), scoreByID["c-rank1"], 1e-9)
	require.InDelta(t, 1.0/float64(k+2), scoreByID["c-rank2"], 1e-9)
	require.InDelta(t, 1.0/float64(k+3), scoreByID["c-rank3"], 1e-9)
	require.InDelta(t, 1.0/float64(k+4), scoreByID["c-rank4"], 1e-9)
	require.InDelta(t, 1.0/float64(k+5), scoreByID["c-rank5"], 1e-9)

	// A rank-5 hit must score strictly less than a rank-1 hit — the bug
	// this regresses against made them equal.
	require.Less(t, scoreByID["c-rank5"], scoreByID["c-rank1"])
}

// The same chunk_id surfacing in both a dense and a lexical list (or in
// more than one collection's list) sums its RRF contributions rather than
// overwriting them.
func TestFuseRRF_DedupSumsContributionsAcrossLists(t *testing.T) {
	t.Parallel()

	const k = 60
	dense := map[string][]capabilities.VectorHit{
		docmodel.CollectionChunks: {{ChunkID: "shared", Payload: map[string]any{"doc_id": "d1"}}},
	}
	lexical := map[string][]capabilities.VectorHit{
		docmodel.CollectionChunks: {{ChunkID: "shared", Payload: map[string]any{"doc_id": "d1"}}},
	}

	out, afterMerge := fuseRRF(dense, lexical, k, nil)
	require.Equal(t, 1, afterMerge)
	require.Len(t, out, 1)
	require.InDelta(t, 2.0/float64(k+1), out[0].Score, 1e-9)
}

// Tie-break chain: equal fused score falls back to collection priority
// (chunks > qa > summaries), then doc_id lexicographic, then chunk_id.
func TestFuseRRF_TieBreakChain(t *testing.T) {
	t.Parallel()

	const k = 60
	dense := map[string][]capabilities.VectorHit{
		docmodel.CollectionSummaries: {{ChunkID: "z-chunk", Payload: map[string]any{"doc_id": "d2"}}},
		docmodel.CollectionQA:        {{ChunkID: "a-chunk", Payload: map[string]any{"doc_id": "d2"}}},
		docmodel.CollectionChunks:    {{ChunkID: "b-chunk", Payload: map[string]any{"doc_id": "d1"}}},
	}

	out, _ := fuseRRF(dense, map[string][]capabilities.VectorHit{}, k, nil)
	require.Len(t, out, 3)
	// All three have identical score (rank-1 contribution from a single
	// list each), so collection priority alone decides order.
	require.Equal(t, "b-chunk", out[0].ChunkID) // documents_chunks
	require.Equal(t, "a-chunk", out[1].ChunkID) // documents_qa
	require.Equal(t, "z-chunk", out[2].ChunkID) // documents_summaries
}

func TestFuseRRF_TieBreakByDocIDThenChunkID(t *testing.T) {
	t.Parallel()

	const k = 60
	dense := map[string][]capabilities.VectorHit{
		docmodel.CollectionChunks: {
			{ChunkID: "chunk-a", Payload: map[string]any{"doc_id": "doc-1"}},
			{ChunkID: "chunk-b", Payload: map[string]any{"doc_id": "doc-2"}},
		},
	}
	lexical := map[string][]capabilities.VectorHit{
		docmodel.CollectionChunks: {
			{ChunkID: "chunk-c", Payload: map[string]any{"doc_id": "doc-1"}},
			{ChunkID: "chunk-d", Payload: map[string]any{"doc_id": "doc-1"}},
		},
	}

	out, _ := fuseRRF(dense, lexical, k, nil)
	require.Len(t, out, 4)
	// chunk-a and chunk-c tie on score (both single rank-1 contributions
	// from different lists, same collection) and both belong to doc-1, so
	// chunk_id lexicographic order decides between them. chunk-b and
	// chunk-d tie one step lower (rank 2), and doc_id order puts doc-1's
	// chunk-d before doc-2's chunk-b.
	require.Equal(t, "chunk-a", out[0].ChunkID)
	require.Equal(t, "chunk-c", out[1].ChunkID)
	require.Equal(t, "chunk-d", out[2].ChunkID)
	require.Equal(t, "chunk-b", out[3].ChunkID)
}

// document_filter removes non-matching docs from byID before afterMerge is
// computed, so afterMerge reflects only the post-filter candidate pool.
func TestFuseRRF_DocumentFilterAppliedBeforeAfterMerge(t *testing.T) {
	t.Parallel()

	dense := map[string][]capabilities.VectorHit{
		docmodel.CollectionChunks: {
			{ChunkID: "keep", Payload: map[string]any{"doc_id": "doc-keep"}},
			{ChunkID: "drop", Payload: map[string]any{"doc_id": "doc-drop"}},
		},
	}

	out, afterMerge := fuseRRF(dense, map[string][]capabilities.VectorHit{}, 60, []string{"doc-keep"})
	require.Equal(t, 1, afterMerge)
	require.Len(t, out, 1)
	require.Equal(t, "keep", out[0].ChunkID)
}

// P6: after_merge (the size of the fused, deduped candidate pool before
// top-K truncation) must be >= the length of the final returned output.
func TestSearch_AfterMergeIsAtLeastOutputLength(t *testing.T) {
	t.Parallel()

	chunksIdx := testutil.NewFakeVectorIndex()
	for i := 0; i < 8; i++ {
		id := "chunk-" + string(rune('a'+i))
		require.NoError(t, chunksIdx.Upsert(context.Background(), []capabilities.VectorRecord{{
			ChunkID:   id,
			DocID:     "doc-1",
			Embedding: []float32{1, 0, 0},
			Payload:   map[string]any{"doc_id": "doc-1"},
			Content:   "budget report quarterly revenue",
		}}))
	}

	indexes := map[string]capabilities.VectorIndex{
		docmodel.CollectionChunks:    chunksIdx,
		docmodel.CollectionSummaries: testutil.NewFakeVectorIndex(),
		docmodel.CollectionQA:        testutil.NewFakeVectorIndex(),
	}
	r := NewRetriever(indexes, 60)

	out, _, afterMerge, err := r.Search(context.Background(), "budget report", []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(out), 3)
	require.GreaterOrEqual(t, afterMerge, len(out))
	// Each source returns at most topK=3 hits, and the dense and lexical
	// lists both name chunk-a..chunk-c, so the fused pool holds 3.
	require.Equal(t, 3, afterMerge)
}

func TestNewRetriever_DefaultsRRFK(t *testing.T) {
	t.Parallel()

	r := NewRetriever(nil, 0)
	require.Equal(t, 60, r.RRFK)

	r2 := NewRetriever(nil, 12)
	require.Equal(t, 12, r2.RRFK)
}
