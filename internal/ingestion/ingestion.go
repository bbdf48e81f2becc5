// Package ingestion implements IngestionOrchestrator (spec.md §4.1): the
// 8-stage pipeline driver that takes an IngestJob from blob fetch through
// vector storage, maintaining the Document row's status lattice as the
// single source of truth for progress. Grounded on
// internal/rag/service/service.go's Ingest() staged-pipeline-with-timing
// structure and internal/rag/ingest/idempotency.go's re-ingestion-policy
// switch, simplified to spec.md §4.1's single re-ingestion action
// ("replace prior chunks atomically").
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/chunker"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/errs"
	"github.com/vertigo15/docengine/internal/metrics"
	"github.com/vertigo15/docengine/internal/observability"
	"github.com/vertigo15/docengine/internal/summarizer"
	"github.com/vertigo15/docengine/internal/treebuilder"
)

// Config bounds IngestionOrchestrator behavior per spec.md §6 Settings keys.
type Config struct {
	NumQAPairs int // default 5
}

func (c Config) withDefaults() Config {
	if c.NumQAPairs <= 0 {
		c.NumQAPairs = 5
	}
	return c
}

// Orchestrator wires together every ingestion-pipeline collaborator. Vision
// and Tagger are optional: a nil Vision skips stage 3 (no image captions),
// per spec.md §4.1 "skippable when feature-disabled or when no images".
type Orchestrator struct {
	Blob       capabilities.BlobStore
	Extractor  capabilities.DocumentExtractor
	Vision     capabilities.VisionDescriber
	Summarizer *summarizer.Summarizer
	QAGen      *summarizer.QAGenerator
	Chunker    *chunker.Chunker
	Embedder   capabilities.Embedder
	Indexes    map[string]capabilities.VectorIndex // collection name -> index
	Meta       capabilities.MetaStore
	Metrics    metrics.Metrics
	Cfg        Config
}

func New(blob capabilities.BlobStore, extractor capabilities.DocumentExtractor, vision capabilities.VisionDescriber, summ *summarizer.Summarizer, qaGen *summarizer.QAGenerator, chunk *chunker.Chunker, embedder capabilities.Embedder, indexes map[string]capabilities.VectorIndex, meta capabilities.MetaStore, m metrics.Metrics, cfg Config) *Orchestrator {
	return &Orchestrator{
		Blob:       blob,
		Extractor:  extractor,
		Vision:     vision,
		Summarizer: summ,
		QAGen:      qaGen,
		Chunker:    chunk,
		Embedder:   embedder,
		Indexes:    indexes,
		Meta:       meta,
		Metrics:    m,
		Cfg:        cfg.withDefaults(),
	}
}

const errorMessageMaxLen = 2000

// Process drives one IngestJob through all 8 stages. It returns an error
// only when the failure should be treated as a poison message by the
// JobBus consumer's handler retry loop; per spec.md §4.1 every stage
// failure is instead persisted to the Document row as status=failed and
// Process returns nil so the JobBus handler acks the message (at-least-once
// delivery is already satisfied by the Document row's recorded outcome).
func (o *Orchestrator) Process(ctx context.Context, job docmodel.IngestJob) error {
	log := observability.LoggerWithTrace(ctx)
	start := time.Now()

	doc, err := o.Meta.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("ingestion: load document %s: %w", job.DocumentID, errs.New(errs.InputRejected, "get_document", err))
	}

	// Re-ingestion of a completed/failed document is an explicit exception
	// to the pending->processing lattice edge (spec.md §4.1: "re-processing
	// a completed document is permitted"); the orchestrator is the single
	// writer for doc_id so this is race-free within one handler invocation.
	doc.Status = docmodel.StatusProcessing
	now := time.Now()
	doc.ProcessingStartedAt = &now
	doc.ErrorMessage = ""
	if err := o.Meta.PutDocument(ctx, doc); err != nil {
		return fmt.Errorf("ingestion: mark processing %s: %w", job.DocumentID, err)
	}

	if err := o.run(ctx, job, doc); err != nil {
		o.fail(ctx, doc, err)
		log.Error().Err(err).Str("document_id", job.DocumentID).Dur("elapsed", time.Since(start)).Msg("ingestion_failed")
		o.observe("ingestion_documents_total", map[string]string{"outcome": "failed"})
		return nil
	}

	o.observe("ingestion_documents_total", map[string]string{"outcome": "completed"})
	log.Info().Str("document_id", job.DocumentID).Dur("elapsed", time.Since(start)).Msg("ingestion_completed")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, job docmodel.IngestJob, doc *docmodel.Document) error {
	// Stage 1: fetch blob.
	stageStart := time.Now()
	raw, err := o.Blob.Get(ctx, job.BlobKey)
	o.observeStage("fetch", stageStart)
	if err != nil {
		return errs.New(errs.InputRejected, "fetch_blob", err)
	}

	// Stage 2: extract structure.
	stageStart = time.Now()
	extracted, err := o.Extractor.Extract(ctx, raw, doc.MimeType)
	o.observeStage("extract", stageStart)
	if err != nil {
		return errs.New(errs.TransientExternal, "extract_timeout", err)
	}

	// Stage 3: describe images (skippable: no Vision adapter, or no images).
	stageStart = time.Now()
	descriptions := map[int]string{}
	if o.Vision != nil {
		for _, region := range extracted.ImageRegions {
			caption, err := o.Vision.Describe(ctx, region.Bytes)
			if err != nil {
				return errs.New(errs.TransientExternal, "describe_images", err)
			}
			descriptions[region.ReadingOrder] = caption
		}
	}
	o.observeStage("describe_images", stageStart)

	// Stage 4: build the DocumentTree.
	stageStart = time.Now()
	tree := treebuilder.Build(extracted, descriptions)
	o.observeStage("build_tree", stageStart)

	// Stage 5: summarize.
	stageStart = time.Now()
	summaries, err := o.Summarizer.Summarize(ctx, tree, doc.Filename)
	o.observeStage("summarize", stageStart)
	if err != nil {
		return errs.New(errs.SchemaViolation, "summarize", err)
	}

	// Stage 6: generate Q&A pairs.
	stageStart = time.Now()
	qaPairs, err := o.QAGen.Generate(ctx, doc.Filename, tree.FullText(), o.Cfg.NumQAPairs)
	o.observeStage("generate_qa", stageStart)
	if err != nil {
		return errs.New(errs.SchemaViolation, "generate_qa", err)
	}

	// Stage 7: chunk, plus materialize summary/qa chunks.
	stageStart = time.Now()
	chunks, err := o.Chunker.Chunk(ctx, tree, job.DocumentID)
	if err != nil {
		return errs.New(errs.SchemaViolation, "chunk", err)
	}
	chunks = append(chunks, summaryChunks(job.DocumentID, summaries)...)
	chunks = append(chunks, qaChunks(job.DocumentID, qaPairs)...)
	o.observeStage("chunk", stageStart)

	// Stage 8: embed and store.
	stageStart = time.Now()
	if err := o.embedAndStore(ctx, job.DocumentID, doc.Filename, chunks); err != nil {
		return err
	}
	o.observeStage("embed_and_store", stageStart)

	o.complete(ctx, doc, chunks, summaries)
	return nil
}

// embedAndStore implements the re-ingestion atomicity rule of spec.md §4.1:
// delete all prior vector records for doc_id across the three collections
// before inserting the new ones, so readers never observe a mix of old and
// new records for the same document.
func (o *Orchestrator) embedAndStore(ctx context.Context, docID, docName string, chunks []docmodel.Chunk) error {
	for _, idx := range o.Indexes {
		if err := idx.DeleteByDoc(ctx, docID); err != nil {
			return errs.New(errs.StoragePostcondition, "delete_prior_vectors", err)
		}
	}

	byCollection := map[string][]docmodel.Chunk{}
	for _, c := range chunks {
		coll := c.Collection()
		byCollection[coll] = append(byCollection[coll], c)
	}

	for coll, group := range byCollection {
		idx, ok := o.Indexes[coll]
		if !ok {
			return errs.New(errs.ConfigurationError, "embed_and_store", fmt.Errorf("no VectorIndex configured for collection %q", coll))
		}
		texts := make([]string, len(group))
		for i, c := range group {
			texts[i] = c.Content
		}
		vectors, err := o.Embedder.Embed(ctx, texts)
		if err != nil {
			return errs.New(errs.RateLimited, "embed_rate_limited", err)
		}
		records := make([]capabilities.VectorRecord, len(group))
		for i, c := range group {
			records[i] = capabilities.VectorRecord{
				ChunkID:   c.ChunkID,
				DocID:     c.DocID,
				Embedding: vectors[i],
				Payload:   chunkPayload(c, docName),
				Content:   c.Content,
			}
		}
		if err := idx.Upsert(ctx, records); err != nil {
			return errs.New(errs.StoragePostcondition, "storage_error", err)
		}
	}
	return nil
}

func chunkPayload(c docmodel.Chunk, docName string) map[string]any {
	return map[string]any{
		"doc_id":         c.DocID,
		"content":        c.Content,
		"hierarchy_path": c.HierarchyPath,
		"page_number":    c.PageNumber,
		"document_name":  docName,
	}
}

// complete implements the processing -> completed transition and its
// counter/timestamp updates (spec.md §4.1 stage 8).
func (o *Orchestrator) complete(ctx context.Context, doc *docmodel.Document, chunks []docmodel.Chunk, summaries docmodel.DocumentSummaries) {
	now := time.Now()
	doc.Status = docmodel.StatusCompleted
	doc.ProcessingCompletedAt = &now
	if doc.ProcessingStartedAt != nil {
		doc.ProcessingTimeSeconds = now.Sub(*doc.ProcessingStartedAt).Seconds()
	}
	doc.ChunkCount = len(chunks)
	doc.VectorCount = len(chunks)
	qaCount := 0
	languages := map[string]bool{}
	for _, c := range chunks {
		if c.Metadata.Type == docmodel.ChunkQA {
			qaCount++
		}
		if c.Language != "" {
			languages[c.Language] = true
		}
	}
	doc.QAPairsCount = qaCount
	doc.Summary = summaries.DocumentSummary
	doc.DetectedLanguages = nil
	for lang := range languages {
		doc.DetectedLanguages = append(doc.DetectedLanguages, lang)
	}
	if len(doc.DetectedLanguages) > 0 {
		doc.PrimaryLanguage = doc.DetectedLanguages[0]
	}
	if err := o.Meta.PutDocument(ctx, doc); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("document_id", doc.ID).Msg("ingestion_complete_persist_error")
	}
}

// fail implements the processing -> failed transition: persist a truncated
// error_message and processing_completed_at. No partial counters are
// written (spec.md §4.1 "no partial success is recorded").
func (o *Orchestrator) fail(ctx context.Context, doc *docmodel.Document, cause error) {
	now := time.Now()
	doc.Status = docmodel.StatusFailed
	doc.ProcessingCompletedAt = &now
	if doc.ProcessingStartedAt != nil {
		doc.ProcessingTimeSeconds = now.Sub(*doc.ProcessingStartedAt).Seconds()
	}
	msg := cause.Error()
	if len(msg) > errorMessageMaxLen {
		msg = msg[:errorMessageMaxLen]
	}
	doc.ErrorMessage = msg
	if err := o.Meta.PutDocument(ctx, doc); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("document_id", doc.ID).Msg("ingestion_fail_persist_error")
	}
}

func (o *Orchestrator) observeStage(stage string, start time.Time) {
	o.observeHistogram("ingestion_stage_ms", float64(time.Since(start).Milliseconds()), map[string]string{"stage": stage})
}

func (o *Orchestrator) observe(name string, labels map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.IncCounter(name, labels)
}

func (o *Orchestrator) observeHistogram(name string, value float64, labels map[string]string) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.ObserveHistogram(name, value, labels)
}

func summaryChunks(docID string, summaries docmodel.DocumentSummaries) []docmodel.Chunk {
	var out []docmodel.Chunk
	out = append(out, docmodel.Chunk{
		ChunkID: uuid.New().String(),
		DocID:   docID,
		Variant: docmodel.ChunkSummary,
		Content: summaries.DocumentSummary,
		Metadata: docmodel.ChunkMetadata{
			Type:  docmodel.ChunkSummary,
			Level: docmodel.SummaryLevelDocument,
		},
	})
	for _, sec := range summaries.SectionSummaries {
		out = append(out, docmodel.Chunk{
			ChunkID: uuid.New().String(),
			DocID:   docID,
			Variant: docmodel.ChunkSummary,
			Content: sec.SummaryText,
			Metadata: docmodel.ChunkMetadata{
				Type:  docmodel.ChunkSummary,
				Level: docmodel.SummaryLevelSection,
			},
		})
	}
	return out
}

func qaChunks(docID string, pairs []docmodel.QAPair) []docmodel.Chunk {
	out := make([]docmodel.Chunk, len(pairs))
	for i, p := range pairs {
		out[i] = docmodel.Chunk{
			ChunkID: uuid.New().String(),
			DocID:   docID,
			Variant: docmodel.ChunkQA,
			Content: fmt.Sprintf("Q: %s\nA: %s", p.Question, p.Answer),
			Metadata: docmodel.ChunkMetadata{
				Type:         docmodel.ChunkQA,
				Question:     p.Question,
				Answer:       p.Answer,
				QuestionType: p.Type,
			},
		}
	}
	return out
}
