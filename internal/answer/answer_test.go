package answer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/retrieve"
)

type scriptedChat struct{ body string }

func (s scriptedChat) Complete(_ context.Context, _ capabilities.ChatRequest) (string, error) {
	return s.body, nil
}

func items() []retrieve.RankedItem {
	return []retrieve.RankedItem{
		{Candidate: retrieve.Candidate{ChunkID: "c1", Payload: map[string]any{"doc_id": "doc-a", "document_name": "Doc A", "content": "alpha fact"}}},
		{Candidate: retrieve.Candidate{ChunkID: "c2", Payload: map[string]any{"doc_id": "doc-b", "document_name": "Doc B", "content": "beta fact"}}},
		{Candidate: retrieve.Candidate{ChunkID: "c3", Payload: map[string]any{"doc_id": "doc-c", "document_name": "Doc C", "content": "gamma fact"}}},
	}
}

func TestGenerate_CitationsOrderedByFirstAppearance(t *testing.T) {
	// Raw answer cites context items 3, then 1, then 3 again: expect
	// output renumbering [1]=item3, [2]=item1, with the repeated [3] in
	// the source collapsing to the already-assigned [1].
	g := New(scriptedChat{body: "Gamma happened [3]. Then alpha happened [1], confirmed again [3]."}, "")

	ans, citations, err := g.Generate(context.Background(), "q", items())
	require.NoError(t, err)
	require.Len(t, citations, 2)
	require.Equal(t, "doc-c", citations[0].DocumentID)
	require.Equal(t, 1, citations[0].ChunkOrdinal)
	require.Equal(t, "doc-a", citations[1].DocumentID)
	require.Equal(t, 2, citations[1].ChunkOrdinal)

	require.Contains(t, ans, "Gamma happened [1]")
	require.Contains(t, ans, "alpha happened [2]")
	require.Contains(t, ans, "confirmed again [1]", "a repeated reference to the same source shares its assigned number")
}

func TestGenerate_OutOfRangeMarkerLeftUntouchedNoCitation(t *testing.T) {
	g := New(scriptedChat{body: "This cites something odd [99]."}, "")

	ans, citations, err := g.Generate(context.Background(), "q", items())
	require.NoError(t, err)
	require.Empty(t, citations)
	require.Contains(t, ans, "[99]")
}

func TestGenerate_NoContextStillCallsChat(t *testing.T) {
	g := New(scriptedChat{body: "I don't have enough information to answer."}, "")

	ans, citations, err := g.Generate(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Empty(t, citations)
	require.Equal(t, "I don't have enough information to answer.", ans)
}

func TestGenerate_NoCitationMarkersYieldsEmptyCitationsList(t *testing.T) {
	g := New(scriptedChat{body: "A plain answer with no citation markers at all."}, "")

	ans, citations, err := g.Generate(context.Background(), "q", items())
	require.NoError(t, err)
	require.Empty(t, citations)
	require.Equal(t, "A plain answer with no citation markers at all.", ans)
}
