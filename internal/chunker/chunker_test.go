package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
)

type fakeTagger struct{ calls int }

func (f *fakeTagger) Analyze(_ context.Context, text string) (capabilities.LanguageAnalysis, error) {
	f.calls++
	return capabilities.LanguageAnalysis{
		PrimaryLanguage: "en",
		IsMultilingual:  false,
		Languages:       []string{"en"},
		Distribution:    map[string]float64{"en": 1.0},
	}, nil
}

type fakeChat struct{ n int }

func (f *fakeChat) Complete(_ context.Context, req capabilities.ChatRequest) (string, error) {
	f.n++
	return "a short parent summary", nil
}

func singleLeafTree(content string) *docmodel.Tree {
	return &docmodel.Tree{Nodes: []docmodel.Node{
		{Kind: docmodel.NodeDocument, ParentIdx: -1, ChildIdx: []int{1}, HierarchyPath: []string{}},
		{Kind: docmodel.NodeParagraph, Content: content, ParentIdx: 0, HierarchyPath: []string{}},
	}}
}

func distinctRunes(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	return sb.String()
}

func TestChunk_OverlapCorrectness(t *testing.T) {
	// No sentence boundaries, forcing token-boundary splits; every
	// substring is distinct (mod 26) so an overlap match can't be a
	// coincidence of repeated characters.
	content := distinctRunes(500)
	tree := singleLeafTree(content)

	c := New(&fakeTagger{}, nil, Config{ChunkSize: 20, ChunkOverlap: 5})
	chunks, err := c.Chunk(context.Background(), tree, "doc-1")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	overlapChars := 5 * charsPerToken
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1].Content[len(chunks[i-1].Content)-overlapChars:]
		curHead := chunks[i].Content[:overlapChars]
		require.Equal(t, prevTail, curHead, "chunk %d overlap must equal chunk %d's trailing suffix", i, i-1)
	}
}

func TestChunk_NoTrailingOverlapOnLastChunk(t *testing.T) {
	content := distinctRunes(100)
	tree := singleLeafTree(content)

	c := New(&fakeTagger{}, nil, Config{ChunkSize: 20, ChunkOverlap: 5})
	chunks, err := c.Chunk(context.Background(), tree, "doc-1")
	require.NoError(t, err)

	// Reconstituting all chunk content (minus each overlap prefix after the
	// first) must reproduce the original text exactly, with no duplicate
	// trailing-only chunk.
	var rebuilt strings.Builder
	overlapChars := 5 * charsPerToken
	for i, ch := range chunks {
		if i == 0 {
			rebuilt.WriteString(ch.Content)
			continue
		}
		require.GreaterOrEqual(t, len(ch.Content), overlapChars)
		rebuilt.WriteString(ch.Content[overlapChars:])
	}
	require.Equal(t, content, rebuilt.String())
}

func TestChunk_SentenceBoundaryPreference(t *testing.T) {
	// chunk_size is small enough that both sentences can't fit together,
	// but large enough (>=60% full after the first sentence) that the
	// split prefers the sentence boundary over a mid-word cut.
	first := "This is the first sentence."
	second := "This is the second sentence."
	content := first + " " + second
	tree := singleLeafTree(content)

	c := New(&fakeTagger{}, nil, Config{ChunkSize: 10, ChunkOverlap: 0})
	chunks, err := c.Chunk(context.Background(), tree, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, first, chunks[0].Content, "first chunk closes exactly at the sentence boundary")
	require.Equal(t, second, chunks[1].Content)
}

func TestChunk_HierarchyPathAndPageNumberInheritance(t *testing.T) {
	page1, page2 := 1, 2
	tree := &docmodel.Tree{Nodes: []docmodel.Node{
		{Kind: docmodel.NodeDocument, ParentIdx: -1, ChildIdx: []int{1}, HierarchyPath: []string{}},
		{Kind: docmodel.NodeSection, Title: "Intro", ParentIdx: 0, ChildIdx: []int{2, 3}, HierarchyPath: []string{}},
		{Kind: docmodel.NodeParagraph, Content: "first leaf content here.", ParentIdx: 1, PageNumber: &page1, HierarchyPath: []string{"Intro"}},
		{Kind: docmodel.NodeParagraph, Content: "second leaf content here.", ParentIdx: 1, PageNumber: &page2, HierarchyPath: []string{"Intro"}},
	}}
	tree.Nodes[0].ChildIdx = []int{1}
	tree.Nodes[1].ChildIdx = []int{2, 3}

	c := New(&fakeTagger{}, nil, Config{ChunkSize: 512, ChunkOverlap: 0})
	chunks, err := c.Chunk(context.Background(), tree, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, []string{"Intro"}, chunks[0].HierarchyPath)
	require.NotNil(t, chunks[0].PageNumber)
	require.Equal(t, 1, *chunks[0].PageNumber, "page_number is inherited from the first leaf")
}

func TestChunk_LanguageTaggingInvoked(t *testing.T) {
	tagger := &fakeTagger{}
	tree := singleLeafTree("hello world, this is a short paragraph.")
	c := New(tagger, nil, Config{ChunkSize: 512, ChunkOverlap: 0})

	chunks, err := c.Chunk(context.Background(), tree, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "en", chunks[0].Language)
	require.Equal(t, 1, tagger.calls)
}

func TestChunk_HierarchicalStrategyEmitsParentChunks(t *testing.T) {
	bigSection := strings.Repeat("word ", 5000) // comfortably over threshold
	tree := &docmodel.Tree{Nodes: []docmodel.Node{
		{Kind: docmodel.NodeDocument, ParentIdx: -1, HierarchyPath: []string{}},
	}}
	addSection := func(title string) int {
		idx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, docmodel.Node{Kind: docmodel.NodeSection, Title: title, ParentIdx: 0, HierarchyPath: []string{}})
		tree.Nodes[0].ChildIdx = append(tree.Nodes[0].ChildIdx, idx)
		paraIdx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, docmodel.Node{Kind: docmodel.NodeParagraph, Content: bigSection, ParentIdx: idx, HierarchyPath: []string{title}})
		tree.Nodes[idx].ChildIdx = append(tree.Nodes[idx].ChildIdx, paraIdx)
		return idx
	}
	addSection("One")
	addSection("Two")
	addSection("Three")

	chat := &fakeChat{}
	c := New(&fakeTagger{}, chat, Config{ChunkSize: 512, ChunkOverlap: 50, HierarchicalThresholdChars: 1000, MinHeadersForSemantic: 3})
	chunks, err := c.Chunk(context.Background(), tree, "doc-1")
	require.NoError(t, err)
	require.Greater(t, chat.n, 0, "hierarchical strategy must invoke Chat for parent summaries")

	var parents []docmodel.Chunk
	for _, ch := range chunks {
		if len(ch.Metadata.Children) > 0 {
			parents = append(parents, ch)
		}
	}
	require.Len(t, parents, 3, "one parent chunk per top-level section")
	for _, p := range parents {
		require.NotEmpty(t, p.Metadata.Children)
	}
}

func TestChunk_NoHierarchicalStrategyWithoutChat(t *testing.T) {
	bigSection := strings.Repeat("word ", 5000)
	tree := &docmodel.Tree{Nodes: []docmodel.Node{
		{Kind: docmodel.NodeDocument, ParentIdx: -1, HierarchyPath: []string{}},
	}}
	addSection := func(title string) {
		idx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, docmodel.Node{Kind: docmodel.NodeSection, Title: title, ParentIdx: 0, HierarchyPath: []string{}})
		tree.Nodes[0].ChildIdx = append(tree.Nodes[0].ChildIdx, idx)
		paraIdx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, docmodel.Node{Kind: docmodel.NodeParagraph, Content: bigSection, ParentIdx: idx, HierarchyPath: []string{title}})
		tree.Nodes[idx].ChildIdx = append(tree.Nodes[idx].ChildIdx, paraIdx)
	}
	addSection("One")
	addSection("Two")
	addSection("Three")

	// Thresholds are met (3 sections, well over the char threshold) but no
	// Chat is configured: the hierarchical strategy must not fire.
	c := New(&fakeTagger{}, nil, Config{ChunkSize: 512, ChunkOverlap: 50, HierarchicalThresholdChars: 1000, MinHeadersForSemantic: 3})

	chunks, err := c.Chunk(context.Background(), tree, "doc-1")
	require.NoError(t, err)
	for _, ch := range chunks {
		require.Empty(t, ch.Metadata.Children, "no Chat configured means no parent chunks, even if thresholds are met")
	}
}
