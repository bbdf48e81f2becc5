package capabilities

import (
	"context"

	"github.com/vertigo15/docengine/internal/docmodel"
)

// MetaStore owns the Document row, query results, and settings. Reads a
// settings per-setting cache is permitted (spec.md §4.6, §5).
type MetaStore interface {
	GetDocument(ctx context.Context, id string) (*docmodel.Document, error)
	PutDocument(ctx context.Context, doc *docmodel.Document) error

	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error

	PutQueryResult(ctx context.Context, result *docmodel.QueryResult) error
}
