// Package treebuilder implements TreeBuilder (spec.md §4.2): merges
// extractor output (ordered blocks plus a region->description map from
// VisionDescriber) into a DocumentTree. No direct teacher analogue exists
// (the teacher operates on flat text, not a structured tree); this package
// is original logic written in the teacher's staged-pipeline idiom
// (internal/rag/ingest), using the arena-and-index Tree representation
// spec.md §9 calls for.
package treebuilder

import (
	"sort"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
)

// Build constructs a DocumentTree from extractor blocks and image regions,
// using descriptions keyed by ReadingOrder. Implements the stack-based
// section-nesting algorithm of spec.md §4.2: a heading of depth d pops any
// open sections of depth >= d, then opens a new section.
func Build(extracted capabilities.ExtractResult, descriptions map[int]string) *docmodel.Tree {
	tree := &docmodel.Tree{Nodes: []docmodel.Node{{
		Kind:          docmodel.NodeDocument,
		HierarchyPath: []string{},
		ParentIdx:     -1,
	}}}

	// stack of open section node indices, ordered outermost-first.
	var sectionStack []int

	currentParent := func() int {
		if len(sectionStack) == 0 {
			return 0
		}
		return sectionStack[len(sectionStack)-1]
	}

	appendChild := func(parentIdx int, n docmodel.Node) int {
		n.ParentIdx = parentIdx
		idx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, n)
		tree.Nodes[parentIdx].ChildIdx = append(tree.Nodes[parentIdx].ChildIdx, idx)
		return idx
	}

	hierarchyPathFor := func(parentIdx int) []string {
		p := &tree.Nodes[parentIdx]
		path := make([]string, len(p.HierarchyPath))
		copy(path, p.HierarchyPath)
		if p.Kind == docmodel.NodeSection {
			path = append(path, p.Title)
		}
		return path
	}

	for _, b := range extracted.Blocks {
		switch b.Role {
		case "heading":
			// Pop sections with depth >= b.Depth (spec.md §4.2).
			for len(sectionStack) > 0 {
				top := sectionStack[len(sectionStack)-1]
				if tree.Nodes[top].Depth >= b.Depth {
					sectionStack = sectionStack[:len(sectionStack)-1]
					continue
				}
				break
			}
			parent := currentParent()
			sec := docmodel.Node{
				Kind:          docmodel.NodeSection,
				Title:         b.Text,
				Depth:         b.Depth,
				Role:          "title",
				PageNumber:    b.Page,
				HierarchyPath: hierarchyPathFor(parent),
			}
			idx := appendChild(parent, sec)
			sectionStack = append(sectionStack, idx)
		case "table":
			parent := currentParent()
			appendChild(parent, docmodel.Node{
				Kind:          docmodel.NodeTable,
				Content:       b.Text,
				PageNumber:    b.Page,
				HierarchyPath: hierarchyPathFor(parent),
			})
		default: // paragraph
			parent := currentParent()
			appendChild(parent, docmodel.Node{
				Kind:          docmodel.NodeParagraph,
				Content:       b.Text,
				PageNumber:    b.Page,
				HierarchyPath: hierarchyPathFor(parent),
			})
		}
	}

	// Image regions carry no position relative to the blocks, so once every
	// block is placed, each region is appended in ReadingOrder under the
	// section still open at the end of the block list (the document root
	// when no section is open).
	regions := append([]capabilities.ImageRegion(nil), extracted.ImageRegions...)
	sort.Slice(regions, func(i, j int) bool { return regions[i].ReadingOrder < regions[j].ReadingOrder })
	for _, r := range regions {
		parent := currentParent()
		appendChild(parent, docmodel.Node{
			Kind:          docmodel.NodeImageDescription,
			Content:       descriptions[r.ReadingOrder],
			HierarchyPath: hierarchyPathFor(parent),
		})
	}

	return tree
}
