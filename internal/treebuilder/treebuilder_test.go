package treebuilder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
)

func TestBuild_SectionNestingAndHierarchyPath(t *testing.T) {
	extracted := capabilities.ExtractResult{
		Blocks: []capabilities.Block{
			{Role: "heading", Depth: 1, Text: "Introduction"},
			{Role: "paragraph", Text: "intro body"},
			{Role: "heading", Depth: 2, Text: "Background"},
			{Role: "paragraph", Text: "background body"},
			{Role: "heading", Depth: 1, Text: "Methods"},
			{Role: "paragraph", Text: "methods body"},
		},
	}

	tree := Build(extracted, nil)

	var paragraphs []docmodel.Node
	tree.Walk(func(_ int, n *docmodel.Node) bool {
		if n.Kind == docmodel.NodeParagraph {
			paragraphs = append(paragraphs, *n)
		}
		return true
	})

	require.Len(t, paragraphs, 3)
	require.Equal(t, []string{"Introduction"}, paragraphs[0].HierarchyPath)
	require.Equal(t, []string{"Introduction", "Background"}, paragraphs[1].HierarchyPath)
	require.Equal(t, []string{"Methods"}, paragraphs[2].HierarchyPath, "a depth-1 heading pops the depth-2 section")
}

func TestBuild_DepthMonotonicityInvariant(t *testing.T) {
	extracted := capabilities.ExtractResult{
		Blocks: []capabilities.Block{
			{Role: "heading", Depth: 1, Text: "A"},
			{Role: "heading", Depth: 2, Text: "A.1"},
			{Role: "heading", Depth: 3, Text: "A.1.1"},
			{Role: "paragraph", Text: "leaf"},
		},
	}
	tree := Build(extracted, nil)

	var leaf docmodel.Node
	tree.Walk(func(_ int, n *docmodel.Node) bool {
		if n.Kind == docmodel.NodeParagraph {
			leaf = *n
		}
		return true
	})
	require.Equal(t, 3, len(leaf.HierarchyPath), "hierarchy_path length equals depth")
	require.Equal(t, []string{"A", "A.1", "A.1.1"}, leaf.HierarchyPath)
}

func TestBuild_ImageRegionsInReadingOrder(t *testing.T) {
	extracted := capabilities.ExtractResult{
		Blocks: []capabilities.Block{
			{Role: "heading", Depth: 1, Text: "Gallery"},
		},
		ImageRegions: []capabilities.ImageRegion{
			{ReadingOrder: 1},
			{ReadingOrder: 0},
		},
	}
	descriptions := map[int]string{0: "first image", 1: "second image"}
	tree := Build(extracted, descriptions)

	var contents []string
	tree.Walk(func(_ int, n *docmodel.Node) bool {
		if n.Kind == docmodel.NodeImageDescription {
			contents = append(contents, n.Content)
		}
		return true
	})
	require.Equal(t, []string{"first image", "second image"}, contents)
}
