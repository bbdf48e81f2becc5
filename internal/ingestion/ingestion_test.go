package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/chunker"
	"github.com/vertigo15/docengine/internal/docmodel"
	"github.com/vertigo15/docengine/internal/summarizer"
)

type fakeBlob struct {
	data []byte
	err  error
}

func (f fakeBlob) Get(context.Context, string) ([]byte, error) { return f.data, f.err }

type fakeExtractor struct {
	result capabilities.ExtractResult
	err    error
}

func (f fakeExtractor) Extract(context.Context, []byte, string) (capabilities.ExtractResult, error) {
	return f.result, f.err
}

type fakeTagger struct{}

func (fakeTagger) Analyze(context.Context, string) (capabilities.LanguageAnalysis, error) {
	return capabilities.LanguageAnalysis{PrimaryLanguage: "en"}, nil
}

type scriptedChat struct{ body string }

func (s scriptedChat) Complete(context.Context, capabilities.ChatRequest) (string, error) {
	return s.body, nil
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}
func (f fakeEmbedder) Dimension() int { return 2 }

// recordingIndex tracks delete/upsert call order so tests can assert the
// delete-before-upsert atomicity rule.
type recordingIndex struct {
	name        string
	events      *[]string
	upsertErr   error
	deleteErr   error
	upsertCount *int
}

func (r recordingIndex) Upsert(_ context.Context, records []capabilities.VectorRecord) error {
	*r.events = append(*r.events, r.name+":upsert")
	if r.upsertCount != nil {
		*r.upsertCount += len(records)
	}
	return r.upsertErr
}
func (r recordingIndex) DeleteByDoc(context.Context, string) error {
	*r.events = append(*r.events, r.name+":delete")
	return r.deleteErr
}
func (r recordingIndex) DenseSearch(context.Context, []float32, int, map[string]string) ([]capabilities.VectorHit, error) {
	return nil, nil
}
func (r recordingIndex) LexicalSearch(context.Context, string, int, map[string]string) ([]capabilities.VectorHit, error) {
	return nil, nil
}

type fakeMeta struct {
	doc  *docmodel.Document
	puts []docmodel.Status
}

func (f *fakeMeta) GetDocument(context.Context, string) (*docmodel.Document, error) {
	return f.doc, nil
}
func (f *fakeMeta) PutDocument(_ context.Context, doc *docmodel.Document) error {
	f.doc = doc
	f.puts = append(f.puts, doc.Status)
	return nil
}
func (f *fakeMeta) GetSetting(context.Context, string) (string, bool, error) { return "", false, nil }
func (f *fakeMeta) PutSetting(context.Context, string, string) error         { return nil }
func (f *fakeMeta) PutQueryResult(context.Context, *docmodel.QueryResult) error {
	return nil
}

func simpleExtractResult() capabilities.ExtractResult {
	return capabilities.ExtractResult{Blocks: []capabilities.Block{
		{Role: "heading", Depth: 1, Text: "Title"},
		{Role: "paragraph", Text: "Some body content about the topic at hand, written plainly."},
	}}
}

func newTestOrchestrator(events *[]string) (*Orchestrator, *fakeMeta) {
	indexes := map[string]capabilities.VectorIndex{
		docmodel.CollectionChunks:    recordingIndex{name: "chunks", events: events},
		docmodel.CollectionSummaries: recordingIndex{name: "summaries", events: events},
		docmodel.CollectionQA:        recordingIndex{name: "qa", events: events},
	}
	chat := scriptedChat{body: `{"qa_pairs":[{"question":"Q?","answer":"A.","type":"factual"}]}`}
	summ := summarizer.New(chat, summarizer.Config{ShortDocThreshold: 100000})
	qaGen := summarizer.NewQAGenerator(chat, "")
	chnk := chunker.New(fakeTagger{}, nil, chunker.Config{})

	meta := &fakeMeta{doc: &docmodel.Document{
		ID:       "doc-1",
		Filename: "report.txt",
		MimeType: "text/plain",
		Status:   docmodel.StatusPending,
	}}

	o := New(fakeBlob{data: []byte("irrelevant")}, fakeExtractor{result: simpleExtractResult()}, nil, summ, qaGen, chnk, fakeEmbedder{}, indexes, meta, nil, Config{})
	return o, meta
}

func TestProcess_HappyPathTransitionsToCompleted(t *testing.T) {
	var events []string
	o, meta := newTestOrchestrator(&events)

	err := o.Process(context.Background(), docmodel.IngestJob{DocumentID: "doc-1", BlobKey: "k1"})
	require.NoError(t, err)
	require.Equal(t, docmodel.StatusCompleted, meta.doc.Status)
	require.Equal(t, []docmodel.Status{docmodel.StatusProcessing, docmodel.StatusCompleted}, meta.puts)
	require.Greater(t, meta.doc.ChunkCount, 0)
	require.NotNil(t, meta.doc.ProcessingCompletedAt)
}

func TestProcess_DeleteByDocPrecedesUpsertForEveryCollection(t *testing.T) {
	var events []string
	o, _ := newTestOrchestrator(&events)

	err := o.Process(context.Background(), docmodel.IngestJob{DocumentID: "doc-1", BlobKey: "k1"})
	require.NoError(t, err)

	// Every collection must see its delete before any of its upserts.
	deleteIdx := map[string]int{}
	for i, e := range events {
		for _, coll := range []string{"chunks", "summaries", "qa"} {
			if e == coll+":delete" {
				if _, ok := deleteIdx[coll]; !ok {
					deleteIdx[coll] = i
				}
			}
			if e == coll+":upsert" {
				di, ok := deleteIdx[coll]
				require.True(t, ok, "collection %s upserted before any delete", coll)
				require.Less(t, di, i, "collection %s delete must precede upsert", coll)
			}
		}
	}
}

func TestProcess_ExtractFailureMarksFailedWithReason(t *testing.T) {
	var events []string
	o, meta := newTestOrchestrator(&events)
	o.Extractor = fakeExtractor{err: errors.New("timed out")}

	err := o.Process(context.Background(), docmodel.IngestJob{DocumentID: "doc-1", BlobKey: "k1"})
	require.NoError(t, err, "stage failures are terminal to the document, not the handler")
	require.Equal(t, docmodel.StatusFailed, meta.doc.Status)
	require.Contains(t, meta.doc.ErrorMessage, "extract_timeout")
	require.Equal(t, 0, meta.doc.ChunkCount, "no partial success is recorded")
}

func TestProcess_EmbedFailureMarksFailedWithRateLimitReason(t *testing.T) {
	var events []string
	o, meta := newTestOrchestrator(&events)
	o.Embedder = fakeEmbedder{err: errors.New("429")}

	err := o.Process(context.Background(), docmodel.IngestJob{DocumentID: "doc-1", BlobKey: "k1"})
	require.NoError(t, err)
	require.Equal(t, docmodel.StatusFailed, meta.doc.Status)
	require.Contains(t, meta.doc.ErrorMessage, "embed_rate_limited")
}

func TestProcess_UpsertFailureMarksFailedWithStorageReason(t *testing.T) {
	var events []string
	indexes := map[string]capabilities.VectorIndex{
		docmodel.CollectionChunks:    recordingIndex{name: "chunks", events: &events, upsertErr: errors.New("write failed")},
		docmodel.CollectionSummaries: recordingIndex{name: "summaries", events: &events},
		docmodel.CollectionQA:        recordingIndex{name: "qa", events: &events},
	}
	chat := scriptedChat{body: `{"qa_pairs":[]}`}
	summ := summarizer.New(chat, summarizer.Config{ShortDocThreshold: 100000})
	qaGen := summarizer.NewQAGenerator(chat, "")
	chnk := chunker.New(fakeTagger{}, nil, chunker.Config{})
	meta := &fakeMeta{doc: &docmodel.Document{ID: "doc-1", Filename: "f", MimeType: "text/plain", Status: docmodel.StatusPending}}
	o := New(fakeBlob{data: []byte("x")}, fakeExtractor{result: simpleExtractResult()}, nil, summ, qaGen, chnk, fakeEmbedder{}, indexes, meta, nil, Config{})

	err := o.Process(context.Background(), docmodel.IngestJob{DocumentID: "doc-1", BlobKey: "k1"})
	require.NoError(t, err)
	require.Equal(t, docmodel.StatusFailed, meta.doc.Status)
	require.Contains(t, meta.doc.ErrorMessage, "storage_error")
}

func TestProcess_ReingestionOfCompletedDocumentIsPermitted(t *testing.T) {
	var events []string
	o, meta := newTestOrchestrator(&events)
	meta.doc.Status = docmodel.StatusCompleted // simulate a prior successful run

	err := o.Process(context.Background(), docmodel.IngestJob{DocumentID: "doc-1", BlobKey: "k1"})
	require.NoError(t, err)
	require.Equal(t, docmodel.StatusCompleted, meta.doc.Status)
}
