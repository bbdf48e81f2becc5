// Package capabilities declares the external-collaborator ports consumed
// by the core (spec.md §4.6). Each is a thin interface; concrete adapters
// live under internal/adapters and are wired by cmd/ingestd and
// cmd/queryd. Modeled on the teacher's dependency-inversion style in
// internal/persistence/databases/interfaces.go (FullTextSearch, VectorStore,
// GraphDB) and internal/llm/provider.go (Provider).
package capabilities

import "context"

// BlobStore fetches raw document bytes by key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Block is one ordered content unit returned by DocumentExtractor.
type Block struct {
	Role  string // "heading" | "paragraph" | "table"
	Depth int    // heading depth; 0 for non-headings
	Page  *int
	Text  string
}

// ImageRegion is an image found during extraction, positioned in document
// order by ReadingOrder.
type ImageRegion struct {
	ReadingOrder int
	Bytes        []byte
}

// ExtractResult is DocumentExtractor's output: ordered blocks plus the
// image regions awaiting description.
type ExtractResult struct {
	Blocks       []Block
	ImageRegions []ImageRegion
}

// DocumentExtractor turns raw bytes of a given MIME type into structure.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (ExtractResult, error)
}

// VisionDescriber produces a caption for one image region.
type VisionDescriber interface {
	Describe(ctx context.Context, imageBytes []byte) (string, error)
}

// ChatRequest is one Chat completion call.
type ChatRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Chat is a single-shot completion port. Retry policy is the caller's
// (spec.md §7); the adapters under internal/adapters make one attempt per
// call and return its error as is, without applying internal/retry.
type Chat interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder returns fixed-dimension vectors for a batch of texts. Batch size
// is chosen by the caller.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorRecord is the minimal shape VectorIndex operates on; callers
// convert to/from docmodel.VectorRecord at the boundary.
type VectorRecord struct {
	ChunkID   string
	DocID     string
	Embedding []float32
	Payload   map[string]any
	Content   string // full-text-indexed field
}

// VectorHit is one ranked result from either a dense or lexical search.
type VectorHit struct {
	ChunkID  string
	Score    float64
	Payload  map[string]any
}

// VectorIndex is one of the three collections (documents_chunks,
// documents_summaries, documents_qa). Each concrete adapter instance is
// bound to exactly one collection name.
type VectorIndex interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	DeleteByDoc(ctx context.Context, docID string) error
	DenseSearch(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]VectorHit, error)
	LexicalSearch(ctx context.Context, text string, topK int, filter map[string]string) ([]VectorHit, error)
}

// LanguageAnalysis is the result of tagging one chunk of text.
type LanguageAnalysis struct {
	PrimaryLanguage string
	IsMultilingual  bool
	Languages       []string
	Distribution    map[string]float64
}

// LanguageTagger analyzes a chunk's content for language composition.
// External per spec.md §1 Non-goals; the core only depends on this
// interface.
type LanguageTagger interface {
	Analyze(ctx context.Context, text string) (LanguageAnalysis, error)
}

// AckFunc acknowledges a delivered message.
type AckFunc func(ctx context.Context) error

// JobBus subscribes to durable, at-least-once queues for ingestion and
// query jobs.
type JobBus interface {
	SubscribeIngest(ctx context.Context, handle func(ctx context.Context, payload []byte) error) error
	SubscribeQuery(ctx context.Context, handle func(ctx context.Context, payload []byte) error) error
	PublishDLQ(ctx context.Context, topic string, payload []byte) error
}
