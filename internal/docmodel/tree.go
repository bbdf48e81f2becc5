package docmodel

import "strings"

// NodeKind enumerates the DocumentTree node kinds. Tagged by kind rather
// than by Go type so the tree can be stored as a flat, indexed slice (an
// arena) instead of a pointer-rich structure — see SPEC_FULL.md §9.
type NodeKind string

const (
	NodeDocument         NodeKind = "document"
	NodeSection          NodeKind = "section"
	NodeParagraph        NodeKind = "paragraph"
	NodeTable            NodeKind = "table"
	NodeImageDescription NodeKind = "image_description"
	NodeHeading          NodeKind = "heading"
)

// Node is one element of the flattened DocumentTree arena. ParentIdx and
// ChildIdx index into the owning Tree.Nodes slice; a ParentIdx of -1 marks
// the root.
type Node struct {
	Kind NodeKind `json:"kind"`

	// Title is set for section/heading nodes.
	Title string `json:"title,omitempty"`
	// Role is an optional role marker, e.g. "title" for a section.
	Role string `json:"role,omitempty"`
	// Depth is the section nesting depth; meaningful for section/heading nodes.
	Depth int `json:"depth,omitempty"`

	Content string `json:"content,omitempty"`

	// HierarchyPath is the ordered list of ancestor section titles.
	HierarchyPath []string `json:"hierarchy_path"`
	PageNumber    *int     `json:"page_number,omitempty"`

	ParentIdx int   `json:"parent_idx"`
	ChildIdx  []int `json:"child_idx,omitempty"`
}

// Tree is a rooted ordered DocumentTree, built once and immutable for the
// remainder of the pipeline.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Root returns the document root node, which is always Nodes[0].
func (t *Tree) Root() *Node {
	if len(t.Nodes) == 0 {
		return nil
	}
	return &t.Nodes[0]
}

// Walk visits nodes in document order (the order they appear in t.Nodes,
// which construction guarantees matches document order).
func (t *Tree) Walk(fn func(idx int, n *Node) bool) {
	for i := range t.Nodes {
		if !fn(i, &t.Nodes[i]) {
			return
		}
	}
}

// Leaves returns the indices of paragraph, table, and image_description
// nodes, in document order — the units the Chunker flattens over.
func (t *Tree) Leaves() []int {
	var out []int
	for i, n := range t.Nodes {
		switch n.Kind {
		case NodeParagraph, NodeTable, NodeImageDescription:
			out = append(out, i)
		}
	}
	return out
}

// FullText concatenates every leaf's content in document order, the input
// to Summarizer's method-selection step (spec.md §4.3).
func (t *Tree) FullText() string {
	var sb strings.Builder
	for _, idx := range t.Leaves() {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(t.Nodes[idx].Content)
	}
	return sb.String()
}

// DirectChildSections returns the indices of section nodes whose parent is
// the document root — the candidates for Summarizer's MAP-phase split.
func (t *Tree) DirectChildSections() []int {
	if len(t.Nodes) == 0 {
		return nil
	}
	var out []int
	for _, idx := range t.Nodes[0].ChildIdx {
		if t.Nodes[idx].Kind == NodeSection {
			out = append(out, idx)
		}
	}
	return out
}

// SectionText concatenates the content of all descendant leaves of the
// section rooted at idx, in document order.
func (t *Tree) SectionText(idx int) string {
	var sb strings.Builder
	var walk func(i int)
	walk = func(i int) {
		n := &t.Nodes[i]
		switch n.Kind {
		case NodeParagraph, NodeTable, NodeImageDescription:
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(n.Content)
		}
		for _, c := range n.ChildIdx {
			walk(c)
		}
	}
	walk(idx)
	return sb.String()
}
