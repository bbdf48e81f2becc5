package docmodel

import "time"

// IngestJob is the JobBus envelope enqueued by the Control Plane for one
// document. Delivered at-least-once; handlers must be idempotent on
// DocumentID (spec.md §3, §6).
type IngestJob struct {
	DocumentID    string    `json:"document_id"`
	BlobKey       string    `json:"blob_key"`
	CorrelationID string    `json:"correlation_id"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// QueryJob is the JobBus envelope enqueued for one natural-language query.
type QueryJob struct {
	QueryID        string   `json:"query_id"`
	QueryText      string   `json:"query_text"`
	DebugMode      bool     `json:"debug_mode"`
	DocumentFilter []string `json:"document_filter,omitempty"`
	CorrelationID  string   `json:"correlation_id"`
}

// Citation references a chunk supporting one numbered inline citation in a
// QueryResult's answer text.
type Citation struct {
	DocumentID    string   `json:"document_id"`
	DocumentName  string   `json:"document_name"`
	HierarchyPath []string `json:"hierarchy_path"`
	PageNumber    *int     `json:"page_number,omitempty"`
	ChunkOrdinal  int      `json:"chunk_ordinal"`
}

// QueryResult is the terminal, persisted outcome of a QueryJob.
type QueryResult struct {
	QueryID         string     `json:"query_id"`
	Answer          *string    `json:"answer"`
	Citations       []Citation `json:"citations"`
	ConfidenceScore float64    `json:"confidence_score"`
	TotalTimeMs     int64      `json:"total_time_ms"`
	IterationCount  int        `json:"iteration_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	DebugData       *DebugData `json:"debug_data,omitempty"`
}
