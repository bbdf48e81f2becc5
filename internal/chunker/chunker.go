// Package chunker implements Chunker (spec.md §4.4): traverses a
// DocumentTree's leaves into size-bounded, overlapping text_chunks with
// sentence-boundary preference, hierarchy_path/page_number inheritance,
// per-chunk language tagging, and the optional hierarchical parent-chunk
// strategy. Grounded on
// internal/rag/chunker/chunker.go's strategy-dispatch idiom and
// internal/documents/splitter.go's explicit-token-offset + overlap-by-
// suffix design (lastTokens()), generalized from raw text to a
// docmodel.Tree.
package chunker

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
)

// Config bounds Chunker behavior per spec.md §4.4 and §6 Settings keys.
type Config struct {
	ChunkSize                  int // tokens; default 512
	ChunkOverlap               int // tokens; default 50
	HierarchicalThresholdChars int // default 60000
	MinHeadersForSemantic      int // default 3
	ParentSummaryMaxLength     int // default 300 chars
	ParentChunkMultiplier      int // default 4
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 512
	}
	if c.ChunkOverlap <= 0 {
		c.ChunkOverlap = 50
	}
	if c.HierarchicalThresholdChars <= 0 {
		c.HierarchicalThresholdChars = 60000
	}
	if c.MinHeadersForSemantic <= 0 {
		c.MinHeadersForSemantic = 3
	}
	if c.ParentSummaryMaxLength <= 0 {
		c.ParentSummaryMaxLength = 300
	}
	if c.ParentChunkMultiplier <= 0 {
		c.ParentChunkMultiplier = 4
	}
	return c
}

// charsPerToken is the estimation ratio used when no real tokenizer is
// available (spec.md §4.4); token_count_method is always "estimated" in
// that case.
const charsPerToken = 4

func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Chunker produces text_chunks (and, optionally, parent chunks) from a
// DocumentTree. LanguageTagger is required; Chat is only invoked by the
// hierarchical strategy.
type Chunker struct {
	Tagger capabilities.LanguageTagger
	Chat   capabilities.Chat // optional; required only for hierarchical parents
	Cfg    Config
}

func New(tagger capabilities.LanguageTagger, chat capabilities.Chat, cfg Config) *Chunker {
	return &Chunker{Tagger: tagger, Chat: chat, Cfg: cfg.withDefaults()}
}

var sentenceBoundary = regexp.MustCompile(`[.!?]["')\]]?\s+`)

// splitSentences breaks content into sentence-ish fragments, each ending at
// a sentence boundary where one exists; the final fragment carries any
// remainder.
func splitSentences(content string) []string {
	locs := sentenceBoundary.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return []string{content}
	}
	var out []string
	prev := 0
	for _, loc := range locs {
		out = append(out, content[prev:loc[1]])
		prev = loc[1]
	}
	if prev < len(content) {
		out = append(out, content[prev:])
	}
	return out
}

// unit is one sentence fragment tagged with its originating leaf, so a
// flushed chunk can report the first/last leaf it drew from.
type unit struct {
	leafIdx int
	text    string
}

// buildUnits flattens every leaf of the tree into sentence-level units in
// document order.
func buildUnits(tree *docmodel.Tree) []unit {
	var out []unit
	for _, idx := range tree.Leaves() {
		content := tree.Nodes[idx].Content
		for _, s := range splitSentences(content) {
			if strings.TrimSpace(s) == "" {
				continue
			}
			out = append(out, unit{leafIdx: idx, text: s})
		}
	}
	return out
}

// commonPrefix returns the longest shared prefix of the given hierarchy
// paths, implementing "a chunk whose leaves span multiple sections uses the
// deepest shared prefix" (spec.md §4.4).
func commonPrefix(paths [][]string) []string {
	if len(paths) == 0 {
		return []string{}
	}
	prefix := append([]string(nil), paths[0]...)
	for _, p := range paths[1:] {
		n := len(prefix)
		if len(p) < n {
			n = len(p)
		}
		i := 0
		for i < n && prefix[i] == p[i] {
			i++
		}
		prefix = prefix[:i]
	}
	return prefix
}

// pending accumulates one in-progress chunk.
type pending struct {
	buf        strings.Builder
	firstLeaf  int
	lastLeaf   int
	paths      [][]string
	hasContent bool
}

func (p *pending) reset() {
	p.buf.Reset()
	p.firstLeaf = -1
	p.lastLeaf = -1
	p.paths = nil
	p.hasContent = false
}

func (p *pending) add(tree *docmodel.Tree, u unit) {
	if p.firstLeaf == -1 {
		p.firstLeaf = u.leafIdx
	}
	p.lastLeaf = u.leafIdx
	path := tree.Nodes[u.leafIdx].HierarchyPath
	if len(p.paths) == 0 || !samePath(p.paths[len(p.paths)-1], path) {
		p.paths = append(p.paths, path)
	}
	p.buf.WriteString(u.text)
	p.hasContent = true
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Chunk implements chunk(tree, cfg) -> [Chunk] (spec.md §4.4), producing
// only text_chunk variants; summary/qa chunks are materialized by the
// orchestrator. When the hierarchical strategy triggers, parent chunks are
// appended after their children.
func (c *Chunker) Chunk(ctx context.Context, tree *docmodel.Tree, docID string) ([]docmodel.Chunk, error) {
	units := buildUnits(tree)
	if len(units) == 0 {
		return nil, nil
	}

	chunkSizeChars := c.Cfg.ChunkSize * charsPerToken
	overlapChars := c.Cfg.ChunkOverlap * charsPerToken
	threshold60 := int(0.6 * float64(chunkSizeChars))

	var chunks []docmodel.Chunk
	var cur pending
	cur.reset()

	flush := func() error {
		if !cur.hasContent || cur.firstLeaf == -1 {
			// Nothing but a carried-over overlap suffix with no new leaf
			// content added since: emitting it would produce a trailing
			// chunk that is pure duplicate overlap (spec.md §4.4: "the
			// last [chunk] no trailing [overlap]").
			cur.reset()
			return nil
		}
		content := strings.TrimSpace(cur.buf.String())
		if content == "" {
			cur.reset()
			return nil
		}
		hierarchyPath := commonPrefix(cur.paths)
		chunk, err := c.newTextChunk(ctx, docID, content, hierarchyPath, tree.Nodes[cur.firstLeaf].PageNumber)
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk)

		// Carry the overlap suffix forward as the seed of the next chunk.
		overlap := suffixChars(content, overlapChars)
		cur.reset()
		if overlap != "" {
			cur.buf.WriteString(overlap)
			cur.hasContent = true
		}
		return nil
	}

	i := 0
	for i < len(units) {
		u := units[i]
		candidateLen := cur.buf.Len() + len(u.text)

		if candidateLen > chunkSizeChars {
			if cur.buf.Len() >= threshold60 {
				// Close at the sentence boundary; reprocess this unit
				// against the fresh (overlap-seeded) buffer.
				if err := flush(); err != nil {
					return nil, err
				}
				continue
			}
			// Not enough progress toward the boundary: break at the raw
			// token (char) boundary inside this oversized unit.
			room := chunkSizeChars - cur.buf.Len()
			if room < 1 {
				room = 1
			}
			if room > len(u.text) {
				room = len(u.text)
			}
			head, tail := u.text[:room], u.text[room:]
			cur.add(tree, unit{leafIdx: u.leafIdx, text: head})
			if err := flush(); err != nil {
				return nil, err
			}
			if tail == "" {
				i++
				continue
			}
			units[i] = unit{leafIdx: u.leafIdx, text: tail}
			continue
		}

		cur.add(tree, u)
		i++
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if c.shouldUseHierarchical(tree) {
		parents, err := c.buildParentChunks(ctx, tree, docID, chunks)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, parents...)
	}

	return chunks, nil
}

func suffixChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		if n <= 0 {
			return ""
		}
		return s
	}
	return s[len(s)-n:]
}

// newTextChunk builds and language-tags one text_chunk.
func (c *Chunker) newTextChunk(ctx context.Context, docID, content string, hierarchyPath []string, page *int) (docmodel.Chunk, error) {
	chunk := docmodel.Chunk{
		ChunkID:       uuid.New().String(),
		DocID:         docID,
		Variant:       docmodel.ChunkTextChunk,
		Content:       content,
		HierarchyPath: hierarchyPath,
		PageNumber:    page,
		Metadata: docmodel.ChunkMetadata{
			Type:             docmodel.ChunkTextChunk,
			TokenCount:       estimateTokens(content),
			TokenCountMethod: docmodel.TokenCountEstimated,
		},
	}
	if err := c.tagLanguage(ctx, &chunk); err != nil {
		return docmodel.Chunk{}, err
	}
	return chunk, nil
}

// tagLanguage invokes the LanguageTagger when content has at least one word
// (spec.md §4.4's minimum-input-size rule).
func (c *Chunker) tagLanguage(ctx context.Context, chunk *docmodel.Chunk) error {
	if strings.TrimSpace(chunk.Content) == "" {
		return nil
	}
	if len(strings.Fields(chunk.Content)) < 1 {
		return nil
	}
	analysis, err := c.Tagger.Analyze(ctx, chunk.Content)
	if err != nil {
		return fmt.Errorf("chunker: language tagging: %w", err)
	}
	chunk.Language = analysis.PrimaryLanguage
	chunk.IsMultilingual = analysis.IsMultilingual
	chunk.Languages = analysis.Languages
	chunk.LanguageDistribution = analysis.Distribution
	return nil
}

// shouldUseHierarchical implements the strategy-selection gate of spec.md
// §4.4.
func (c *Chunker) shouldUseHierarchical(tree *docmodel.Tree) bool {
	if len(tree.FullText()) <= c.Cfg.HierarchicalThresholdChars {
		return false
	}
	headers := 0
	for _, n := range tree.Nodes {
		if n.Kind == docmodel.NodeSection {
			headers++
		}
	}
	return headers >= c.Cfg.MinHeadersForSemantic
}

// buildParentChunks emits one parent chunk per direct-child section,
// referencing the chunk_ids of its children (metadata.children). This is
// the only point at which Chunker invokes Chat (spec.md §4.4).
func (c *Chunker) buildParentChunks(ctx context.Context, tree *docmodel.Tree, docID string, children []docmodel.Chunk) ([]docmodel.Chunk, error) {
	if c.Chat == nil {
		return nil, nil
	}
	sections := tree.DirectChildSections()
	var parents []docmodel.Chunk
	for _, secIdx := range sections {
		sec := &tree.Nodes[secIdx]
		childIDs := childrenOfSection(tree, secIdx, children)
		if len(childIDs) == 0 {
			continue
		}
		summary, err := c.summarizeForParent(ctx, sec.Title, tree.SectionText(secIdx))
		if err != nil {
			return nil, err
		}
		content := sec.Title + "\n\n" + summary
		maxParentChars := c.Cfg.ParentChunkMultiplier * c.Cfg.ChunkSize * charsPerToken
		if len(content) > maxParentChars {
			content = content[:maxParentChars]
		}
		parent := docmodel.Chunk{
			ChunkID:       uuid.New().String(),
			DocID:         docID,
			Variant:       docmodel.ChunkTextChunk,
			Content:       content,
			HierarchyPath: sec.HierarchyPath,
			PageNumber:    sec.PageNumber,
			Metadata: docmodel.ChunkMetadata{
				Type:             docmodel.ChunkTextChunk,
				TokenCount:       estimateTokens(content),
				TokenCountMethod: docmodel.TokenCountEstimated,
				Children:         childIDs,
			},
		}
		if err := c.tagLanguage(ctx, &parent); err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}
	return parents, nil
}

// childrenOfSection finds the chunk_ids of already-built chunks whose
// hierarchy_path falls under the given section.
func childrenOfSection(tree *docmodel.Tree, secIdx int, children []docmodel.Chunk) []string {
	secPath := tree.Nodes[secIdx].HierarchyPath
	secPath = append(secPath, tree.Nodes[secIdx].Title)
	var ids []string
	for _, ch := range children {
		if hasPrefix(ch.HierarchyPath, secPath) {
			ids = append(ids, ch.ChunkID)
		}
	}
	return ids
}

func hasPrefix(path, prefix []string) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if path[i] != p {
			return false
		}
	}
	return true
}

const parentSummaryPrompt = `Write a summary of at most %d characters for the section titled "%s" below, to serve as a navigational parent chunk.

%s`

func (c *Chunker) summarizeForParent(ctx context.Context, title, content string) (string, error) {
	user := fmt.Sprintf(parentSummaryPrompt, c.Cfg.ParentSummaryMaxLength, title, content)
	out, err := c.Chat.Complete(ctx, capabilities.ChatRequest{User: user, MaxTokens: 300, Temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("chunker: parent summary: %w", err)
	}
	if len(out) > c.Cfg.ParentSummaryMaxLength {
		out = out[:c.Cfg.ParentSummaryMaxLength]
	}
	return out, nil
}
