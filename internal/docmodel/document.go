// Package docmodel holds the data shapes shared by every stage of the
// ingestion and query pipelines: documents, document trees, chunks, vector
// records, jobs, and the debug-data contract surfaced to the Operator UI.
package docmodel

import "time"

// Status is the single-writer lifecycle state of a Document. The
// IngestionOrchestrator is the only writer; queries must never mutate it.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Document is the MetaStore row tracked across a document's lifecycle.
type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	BlobKey  string `json:"blob_key"`

	FileSizeBytes int64  `json:"file_size_bytes"`
	MimeType      string `json:"mime_type"`

	Status Status `json:"status"`

	UploadedAt             time.Time  `json:"uploaded_at"`
	ProcessingStartedAt    *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt  *time.Time `json:"processing_completed_at,omitempty"`
	ProcessingTimeSeconds  float64    `json:"processing_time_seconds,omitempty"`

	ChunkCount    int `json:"chunk_count"`
	VectorCount   int `json:"vector_count"`
	QAPairsCount  int `json:"qa_pairs_count"`

	DetectedLanguages []string `json:"detected_languages,omitempty"`
	PrimaryLanguage   string   `json:"primary_language,omitempty"`

	Summary      string `json:"summary,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CanTransitionTo reports whether the lattice pending -> processing ->
// {completed | failed} permits moving from d.Status to next (P10).
func (d *Document) CanTransitionTo(next Status) bool {
	switch d.Status {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}
