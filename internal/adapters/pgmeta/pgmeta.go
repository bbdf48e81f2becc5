// Package pgmeta implements MetaStore (spec.md §4.6) over Postgres.
// Grounded on internal/persistence/databases/chat_store_postgres.go's
// pool-backed CRUD idiom (best-effort CREATE IF NOT EXISTS bootstrap,
// pgx.ErrNoRows -> not-found translation) and postgres_doc.go's documented
// table/extension conventions, generalized from chat sessions/messages to
// the Document/QueryResult/Setting rows spec.md §3 and §6 describe.
package pgmeta

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vertigo15/docengine/internal/docmodel"
)

// Store is a Postgres-backed capabilities.MetaStore.
type Store struct {
	pool *pgxpool.Pool
}

// New bootstraps the documents/query_results/settings tables and returns
// a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  file_size_bytes BIGINT NOT NULL DEFAULT 0,
  mime_type TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  processing_started_at TIMESTAMPTZ,
  processing_completed_at TIMESTAMPTZ,
  processing_time_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
  chunk_count INTEGER NOT NULL DEFAULT 0,
  vector_count INTEGER NOT NULL DEFAULT 0,
  qa_pairs_count INTEGER NOT NULL DEFAULT 0,
  detected_languages JSONB NOT NULL DEFAULT '[]'::jsonb,
  primary_language TEXT NOT NULL DEFAULT '',
  summary TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS query_results (
  query_id TEXT PRIMARY KEY,
  result JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (*docmodel.Document, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, filename, blob_key, file_size_bytes, mime_type, status, uploaded_at,
       processing_started_at, processing_completed_at, processing_time_seconds,
       chunk_count, vector_count, qa_pairs_count, detected_languages, primary_language,
       summary, error_message
FROM documents WHERE id = $1`, id)

	var doc docmodel.Document
	var languagesRaw []byte
	if err := row.Scan(
		&doc.ID, &doc.Filename, &doc.BlobKey, &doc.FileSizeBytes, &doc.MimeType, &doc.Status, &doc.UploadedAt,
		&doc.ProcessingStartedAt, &doc.ProcessingCompletedAt, &doc.ProcessingTimeSeconds,
		&doc.ChunkCount, &doc.VectorCount, &doc.QAPairsCount, &languagesRaw, &doc.PrimaryLanguage,
		&doc.Summary, &doc.ErrorMessage,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	_ = json.Unmarshal(languagesRaw, &doc.DetectedLanguages)
	return &doc, nil
}

func (s *Store) PutDocument(ctx context.Context, doc *docmodel.Document) error {
	languages, err := json.Marshal(doc.DetectedLanguages)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO documents (
  id, filename, blob_key, file_size_bytes, mime_type, status, uploaded_at,
  processing_started_at, processing_completed_at, processing_time_seconds,
  chunk_count, vector_count, qa_pairs_count, detected_languages, primary_language,
  summary, error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  filename = EXCLUDED.filename,
  blob_key = EXCLUDED.blob_key,
  file_size_bytes = EXCLUDED.file_size_bytes,
  mime_type = EXCLUDED.mime_type,
  status = EXCLUDED.status,
  processing_started_at = EXCLUDED.processing_started_at,
  processing_completed_at = EXCLUDED.processing_completed_at,
  processing_time_seconds = EXCLUDED.processing_time_seconds,
  chunk_count = EXCLUDED.chunk_count,
  vector_count = EXCLUDED.vector_count,
  qa_pairs_count = EXCLUDED.qa_pairs_count,
  detected_languages = EXCLUDED.detected_languages,
  primary_language = EXCLUDED.primary_language,
  summary = EXCLUDED.summary,
  error_message = EXCLUDED.error_message
`,
		doc.ID, doc.Filename, doc.BlobKey, doc.FileSizeBytes, doc.MimeType, doc.Status, doc.UploadedAt,
		doc.ProcessingStartedAt, doc.ProcessingCompletedAt, doc.ProcessingTimeSeconds,
		doc.ChunkCount, doc.VectorCount, doc.QAPairsCount, languages, doc.PrimaryLanguage,
		doc.Summary, doc.ErrorMessage,
	)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO settings (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
`, key, value)
	return err
}

func (s *Store) PutQueryResult(ctx context.Context, result *docmodel.QueryResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO query_results (query_id, result, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (query_id) DO UPDATE SET result = EXCLUDED.result
`, result.QueryID, body, time.Now().UTC())
	return err
}
