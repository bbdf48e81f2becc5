// Package pgsearch implements the lexical/full-text side of VectorIndex
// (SPEC_FULL.md §11) over Postgres tsvector/ts_rank. Grounded on
// internal/persistence/databases/postgres_search.go's websearch_to_tsquery
// + ts_rank idiom and postgres_doc.go's bootstrap-schema documentation
// convention (best-effort CREATE IF NOT EXISTS, no external migration
// tool). One Index instance is scoped to a single collection (documents_chunks,
// documents_summaries, or documents_qa) via its table's "collection" column.
package pgsearch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vertigo15/docengine/internal/capabilities"
)

// Index is the lexical-search and row-of-record half of one collection's
// VectorIndex. internal/adapters/qdrant.Index embeds one of these to
// satisfy the full interface (dense + lexical) from a single collection
// instance, matching internal/retrieve's expectation that each collection
// name maps to exactly one capabilities.VectorIndex.
type Index struct {
	pool       *pgxpool.Pool
	collection string
}

// New returns a pgsearch.Index bound to collection, bootstrapping its
// table and GIN index if they don't already exist.
func New(ctx context.Context, pool *pgxpool.Pool, collection string) (*Index, error) {
	idx := &Index{pool: pool, collection: collection}
	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (x *Index) ensureSchema(ctx context.Context) error {
	_, err := x.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vector_chunks (
  chunk_id TEXT NOT NULL,
  doc_id TEXT NOT NULL,
  collection TEXT NOT NULL,
  content TEXT NOT NULL,
  payload JSONB NOT NULL DEFAULT '{}'::jsonb,
  ts tsvector GENERATED ALWAYS AS (to_tsvector('simple', coalesce(content,''))) STORED,
  PRIMARY KEY (collection, chunk_id)
);
CREATE INDEX IF NOT EXISTS vector_chunks_ts_idx ON vector_chunks USING GIN (ts);
CREATE INDEX IF NOT EXISTS vector_chunks_doc_idx ON vector_chunks (collection, doc_id);
`)
	return err
}

// Upsert writes each record's content and payload so it becomes visible to
// lexical search; dense storage is qdrant's responsibility.
func (x *Index) Upsert(ctx context.Context, records []capabilities.VectorRecord) error {
	for _, r := range records {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return err
		}
		if _, err := x.pool.Exec(ctx, `
INSERT INTO vector_chunks (chunk_id, doc_id, collection, content, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (collection, chunk_id) DO UPDATE
  SET content = EXCLUDED.content, payload = EXCLUDED.payload, doc_id = EXCLUDED.doc_id
`, r.ChunkID, r.DocID, x.collection, r.Content, payload); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByDoc removes every row belonging to docID within this collection.
func (x *Index) DeleteByDoc(ctx context.Context, docID string) error {
	_, err := x.pool.Exec(ctx, `DELETE FROM vector_chunks WHERE collection = $1 AND doc_id = $2`, x.collection, docID)
	return err
}

// Search runs websearch_to_tsquery over the 'simple' dictionary, falling
// back to plainto_tsquery on syntax errors the way postgres_search.go's
// SearchChunks does, ranked by ts_rank, optionally restricted to
// filter["doc_id"].
func (x *Index) Search(ctx context.Context, text string, topK int, filter map[string]string) ([]capabilities.VectorHit, error) {
	q := strings.TrimSpace(text)
	if q == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}
	docID, hasDocFilter := filter["doc_id"]

	run := func(stmt string) ([]capabilities.VectorHit, error) {
		var rows rowsScanner
		var err error
		if hasDocFilter {
			rows, err = x.pool.Query(ctx, stmt+` AND doc_id = $3 ORDER BY score DESC LIMIT $4`, q, x.collection, docID, topK)
		} else {
			rows, err = x.pool.Query(ctx, stmt+` ORDER BY score DESC LIMIT $3`, q, x.collection, topK)
		}
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []capabilities.VectorHit
		for rows.Next() {
			var chunkID string
			var score float64
			var payloadRaw []byte
			if err := rows.Scan(&chunkID, &score, &payloadRaw); err != nil {
				return nil, err
			}
			var payload map[string]any
			_ = json.Unmarshal(payloadRaw, &payload)
			out = append(out, capabilities.VectorHit{ChunkID: chunkID, Score: score, Payload: payload})
		}
		return out, rows.Err()
	}

	stmt := `SELECT chunk_id, ts_rank(ts, websearch_to_tsquery('simple', $1)) AS score, payload
FROM vector_chunks WHERE collection = $2 AND ts @@ websearch_to_tsquery('simple', $1)`
	out, err := run(stmt)
	if err == nil {
		return out, nil
	}
	stmt = `SELECT chunk_id, ts_rank(ts, plainto_tsquery('simple', $1)) AS score, payload
FROM vector_chunks WHERE collection = $2 AND ts @@ plainto_tsquery('simple', $1)`
	return run(stmt)
}

// rowsScanner is the subset of pgx.Rows Search needs; declared so the
// run closure above type-checks without importing pgx directly here.
type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}
