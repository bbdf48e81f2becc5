// Package extract implements DocumentExtractor (spec.md §4.1 step 2) for
// the MIME types the ingestion pipeline accepts: HTML is reduced to its
// main article via go-readability and walked into blocks; plain text,
// markdown, and JSON go through a line-based path that splits paragraph
// blocks on blank lines and turns "# "-style lines into heading blocks (the
// "TextProcessor path" spec.md §4.1 carves out for non-structured MIME
// types). Grounded on the teacher's internal/tools/web/fetch.go, which
// pairs the same two libraries (go-readability for main-content
// extraction, html-to-markdown/v2 for the HTML walk) to turn fetched pages
// into structured text; no pack file wires a PDF path, so application/pdf
// is rejected rather than guessed at (see DESIGN.md).
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/errs"
)

// Extractor implements capabilities.DocumentExtractor over the MIME types
// listed in spec.md's ingestion step 2.
type Extractor struct{}

// New returns a stateless Extractor; it holds no external connections.
func New() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (capabilities.ExtractResult, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return e.extractHTML(data)
	case mt == "text/plain" || mt == "text/markdown" || mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return textProcessorResult(data), nil
	default:
		return capabilities.ExtractResult{}, &errs.Error{
			Op:   "extract.Extract",
			Kind: errs.InputRejected,
			Err:  fmt.Errorf("unsupported mime type %q", mimeType),
		}
	}
}

// textProcessorResult implements the plain text / markdown / JSON path
// spec.md §4.1 describes as "a TextProcessor path ... selected by MIME
// type": blank lines separate paragraph blocks, and any line made of one to
// six '#' characters followed by a space becomes a heading block (for all
// three MIME types) so TreeBuilder still gets a document title when one is
// present.
func textProcessorResult(data []byte) capabilities.ExtractResult {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return capabilities.ExtractResult{}
	}

	var blocks []capabilities.Block
	lines := strings.Split(text, "\n")
	var para []string
	flush := func() {
		if len(para) == 0 {
			return
		}
		blocks = append(blocks, capabilities.Block{Role: "paragraph", Text: strings.TrimSpace(strings.Join(para, "\n"))})
		para = nil
	}
	for _, line := range lines {
		if depth, heading, ok := markdownHeading(line); ok {
			flush()
			blocks = append(blocks, capabilities.Block{Role: "heading", Depth: depth, Text: heading})
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()

	return capabilities.ExtractResult{Blocks: blocks}
}

func markdownHeading(line string) (depth int, text string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	depth = 0
	for depth < len(trimmed) && trimmed[depth] == '#' {
		depth++
	}
	if depth == 0 || depth > 6 || depth >= len(trimmed) || trimmed[depth] != ' ' {
		return 0, "", false
	}
	return depth, strings.TrimSpace(trimmed[depth:]), true
}

// extractHTML prefers go-readability's main-article extraction, falling
// back to the raw document when readability finds nothing usable, then
// walks the resulting HTML into ordered blocks and image regions —
// mirroring FetchMarkdown's "prefer main article, fall back to full
// document" strategy but stopping at structured blocks rather than
// converting all the way to a flat Markdown string, since TreeBuilder
// needs role/depth/page per block.
func (e *Extractor) extractHTML(data []byte) (capabilities.ExtractResult, error) {
	raw := string(data)
	articleHTML := raw

	// readability.FromReader requires a non-nil base URL for resolving
	// relative links; ingestion hands this adapter bytes with no source
	// URL, so an empty placeholder base stands in (matching FetchMarkdown's
	// non-nil base invariant without pretending to know the real origin).
	base, _ := url.Parse("about:blank")
	if art, err := readability.FromReader(strings.NewReader(raw), base); err == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
	}

	doc, err := html.Parse(strings.NewReader(articleHTML))
	if err != nil {
		return capabilities.ExtractResult{}, &errs.Error{Op: "extract.extractHTML", Kind: errs.InputRejected, Err: err}
	}

	w := &htmlWalker{}
	w.walk(doc)

	blocks := w.blocks
	if len(blocks) == 0 {
		// The tag-based walk found no heading/paragraph/table elements
		// (e.g. a document built from <div>s with no semantic markup);
		// fall back to a flat Markdown rendering via html-to-markdown/v2,
		// the same library FetchMarkdown reaches for once readability
		// comes up empty.
		if md, mdErr := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain("")); mdErr == nil && strings.TrimSpace(md) != "" {
			blocks = []capabilities.Block{{Role: "paragraph", Text: strings.TrimSpace(md)}}
		}
	}

	return capabilities.ExtractResult{Blocks: blocks, ImageRegions: w.images}, nil
}

type htmlWalker struct {
	blocks []capabilities.Block
	images []capabilities.ImageRegion
	order  int
}

var headingDepth = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

func (w *htmlWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		tag := strings.ToLower(n.Data)
		if depth, ok := headingDepth[tag]; ok {
			if text := strings.TrimSpace(textContent(n)); text != "" {
				w.blocks = append(w.blocks, capabilities.Block{Role: "heading", Depth: depth, Text: text})
			}
			return
		}
		switch tag {
		case "p", "li", "blockquote":
			if text := strings.TrimSpace(textContent(n)); text != "" {
				w.blocks = append(w.blocks, capabilities.Block{Role: "paragraph", Text: text})
			}
			return
		case "table":
			if text := strings.TrimSpace(textContent(n)); text != "" {
				w.blocks = append(w.blocks, capabilities.Block{Role: "table", Text: text})
			}
			return
		case "img":
			if b, ok := decodeDataImage(attr(n, "src")); ok {
				w.images = append(w.images, capabilities.ImageRegion{ReadingOrder: w.order, Bytes: b})
				w.order++
			}
			return
		case "script", "style":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// decodeDataImage extracts raw bytes from a data: URL image src, skipping
// remote URLs since fetching them is outside DocumentExtractor's scope
// (the blob was already fetched once by BlobStore; HTML with remote image
// references is captured as text only).
func decodeDataImage(src string) ([]byte, bool) {
	const prefix = "data:"
	if !strings.HasPrefix(src, prefix) {
		return nil, false
	}
	comma := strings.Index(src, ",")
	if comma < 0 {
		return nil, false
	}
	meta := src[len(prefix):comma]
	if !strings.Contains(meta, "base64") {
		return nil, false
	}
	payload := src[comma+1:]
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(b) == 0 {
		return nil, false
	}
	return b, true
}

var _ capabilities.DocumentExtractor = (*Extractor)(nil)
