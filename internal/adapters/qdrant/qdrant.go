// Package qdrant implements the dense-vector side of VectorIndex
// (SPEC_FULL.md §11) against Qdrant's gRPC API, and composes in a
// pgsearch.Index for the lexical half so each collection is satisfied by a
// single capabilities.VectorIndex, as internal/retrieve's Indexes map
// expects. Grounded on
// internal/persistence/databases/qdrant_vector.go: same DSN parsing,
// ensureCollection bootstrap, and uuid.NewSHA1-based deterministic
// point-ID derivation with the original chunk_id preserved in payload
// under PAYLOAD_ID_FIELD.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"

	"github.com/vertigo15/docengine/internal/adapters/pgsearch"
	"github.com/vertigo15/docengine/internal/capabilities"
)

// PayloadIDField stores the original chunk_id for points whose derived
// point ID isn't itself a valid UUID, mirroring qdrant_vector.go.
const PayloadIDField = "_original_id"

// Index is one collection's capabilities.VectorIndex: dense search/storage
// against Qdrant, lexical search/storage delegated to an embedded
// pgsearch.Index.
type Index struct {
	client     *qc.Client
	collection string
	dimension  int
	metric     string
	lexical    *pgsearch.Index
}

// New connects to Qdrant at dsn (host[:port], gRPC port 6334 by default,
// optional "?api_key=" query param per qdrant_vector.go), ensures the
// collection exists with the given dimension/metric, and wires lexical
// for the same collection.
func New(ctx context.Context, dsn, collection string, dimension int, metric string, lexical *pgsearch.Index) (*Index, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	if dsn != "" && !strings.Contains(dsn, "://") {
		dsn = "http://" + dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port in dsn: %w", err)
	}
	cfg := &qc.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qc.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	idx := &Index{
		client:     client,
		collection: collection,
		dimension:  dimension,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
		lexical:    lexical,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant: ensure collection: %w", err)
	}
	return idx, nil
}

func (x *Index) ensureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if x.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	var distance qc.Distance
	switch x.metric {
	case "l2", "euclidean":
		distance = qc.Distance_Euclid
	case "ip", "dot":
		distance = qc.Distance_Dot
	case "manhattan":
		distance = qc.Distance_Manhattan
	default:
		distance = qc.Distance_Cosine
	}
	return x.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     uint64(x.dimension),
			Distance: distance,
		}),
	})
}

// pointID derives a Qdrant-legal point ID (UUID or positive int) from an
// arbitrary chunk_id, same as qdrant_vector.go.
func pointID(chunkID string) (qdrantID *qc.PointId, original string) {
	if _, err := uuid.Parse(chunkID); err == nil {
		return qc.NewIDUUID(chunkID), ""
	}
	derived := uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
	return qc.NewIDUUID(derived), chunkID
}

// Upsert writes dense vectors to Qdrant and delegates the same records to
// the lexical store so both halves of the collection stay consistent.
func (x *Index) Upsert(ctx context.Context, records []capabilities.VectorRecord) error {
	points := make([]*qc.PointStruct, 0, len(records))
	for _, r := range records {
		id, original := pointID(r.ChunkID)
		payload := make(map[string]any, len(r.Payload)+2)
		for k, v := range r.Payload {
			payload[k] = v
		}
		payload["doc_id"] = r.DocID
		if original != "" {
			payload[PayloadIDField] = original
		}
		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		points = append(points, &qc.PointStruct{
			Id:      id,
			Vectors: qc.NewVectorsDense(vec),
			Payload: qc.NewValueMap(payload),
		})
	}
	if len(points) > 0 {
		if _, err := x.client.Upsert(ctx, &qc.UpsertPoints{CollectionName: x.collection, Points: points}); err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
	}
	if x.lexical != nil {
		return x.lexical.Upsert(ctx, records)
	}
	return nil
}

// DeleteByDoc removes every point matching doc_id from Qdrant and every
// row for docID from the lexical store.
func (x *Index) DeleteByDoc(ctx context.Context, docID string) error {
	_, err := x.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: x.collection,
		Points: qc.NewPointsSelectorFilter(&qc.Filter{
			Must: []*qc.Condition{qc.NewMatch("doc_id", docID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	if x.lexical != nil {
		return x.lexical.DeleteByDoc(ctx, docID)
	}
	return nil
}

// DenseSearch performs cosine (or configured metric) similarity search,
// optionally restricted to filter["doc_id"].
func (x *Index) DenseSearch(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]capabilities.VectorHit, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qf *qc.Filter
	if docID, ok := filter["doc_id"]; ok && docID != "" {
		qf = &qc.Filter{Must: []*qc.Condition{qc.NewMatch("doc_id", docID)}}
	}
	limit := uint64(topK)
	hits, err := x.client.Query(ctx, &qc.QueryPoints{
		CollectionName: x.collection,
		Query:          qc.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]capabilities.VectorHit, 0, len(hits))
	for _, h := range hits {
		chunkID := h.Id.GetUuid()
		payload := map[string]any{}
		if h.Payload != nil {
			for k, v := range h.Payload {
				if k == PayloadIDField {
					chunkID = v.GetStringValue()
					continue
				}
				payload[k] = payloadToAny(v)
			}
		}
		out = append(out, capabilities.VectorHit{ChunkID: chunkID, Score: float64(h.Score), Payload: payload})
	}
	return out, nil
}

// LexicalSearch delegates to the embedded pgsearch.Index.
func (x *Index) LexicalSearch(ctx context.Context, text string, topK int, filter map[string]string) ([]capabilities.VectorHit, error) {
	if x.lexical == nil {
		return nil, nil
	}
	return x.lexical.Search(ctx, text, topK, filter)
}

// Close releases the underlying Qdrant gRPC connection.
func (x *Index) Close() error { return x.client.Close() }

func payloadToAny(v *qc.Value) any {
	switch kind := v.Kind.(type) {
	case *qc.Value_StringValue:
		return kind.StringValue
	case *qc.Value_IntegerValue:
		return kind.IntegerValue
	case *qc.Value_DoubleValue:
		return kind.DoubleValue
	case *qc.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.GetStringValue()
	}
}
