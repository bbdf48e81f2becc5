package testutil

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/vertigo15/docengine/internal/capabilities"
)

// FakeVectorIndex is an in-memory VectorIndex for one collection: dense
// search by cosine similarity, lexical search by naive substring-overlap
// scoring. Good enough to exercise HybridRetriever's fusion logic without a
// live Qdrant/Postgres pair.
type FakeVectorIndex struct {
	mu      sync.Mutex
	records map[string]capabilities.VectorRecord
}

func NewFakeVectorIndex() *FakeVectorIndex {
	return &FakeVectorIndex{records: map[string]capabilities.VectorRecord{}}
}

func (f *FakeVectorIndex) Upsert(_ context.Context, records []capabilities.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.records[r.ChunkID] = r
	}
	return nil
}

func (f *FakeVectorIndex) DeleteByDoc(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.records {
		if r.DocID == docID {
			delete(f.records, id)
		}
	}
	return nil
}

func matchesFilter(payload map[string]any, filter map[string]string) bool {
	for k, v := range filter {
		pv, ok := payload[k]
		if !ok {
			return false
		}
		if s, ok := pv.(string); !ok || s != v {
			return false
		}
	}
	return true
}

func (f *FakeVectorIndex) DenseSearch(_ context.Context, vector []float32, topK int, filter map[string]string) ([]capabilities.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type scored struct {
		id    string
		score float64
		rec   capabilities.VectorRecord
	}
	var all []scored
	for id, r := range f.records {
		if !matchesFilter(r.Payload, filter) {
			continue
		}
		all = append(all, scored{id: id, score: cosine(vector, r.Embedding), rec: r})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}
	out := make([]capabilities.VectorHit, len(all))
	for i, s := range all {
		out[i] = capabilities.VectorHit{ChunkID: s.id, Score: s.score, Payload: s.rec.Payload}
	}
	return out, nil
}

func (f *FakeVectorIndex) LexicalSearch(_ context.Context, text string, topK int, filter map[string]string) ([]capabilities.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	terms := strings.Fields(strings.ToLower(text))
	type scored struct {
		id    string
		score float64
		rec   capabilities.VectorRecord
	}
	var all []scored
	for id, r := range f.records {
		if !matchesFilter(r.Payload, filter) {
			continue
		}
		content := strings.ToLower(r.Content)
		var hits float64
		for _, t := range terms {
			if t == "" {
				continue
			}
			hits += float64(strings.Count(content, t))
		}
		if hits == 0 {
			continue
		}
		all = append(all, scored{id: id, score: hits, rec: r})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}
	out := make([]capabilities.VectorHit, len(all))
	for i, s := range all {
		out[i] = capabilities.VectorHit{ChunkID: s.id, Score: s.score, Payload: s.rec.Payload}
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
