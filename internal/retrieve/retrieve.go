// Package retrieve implements HybridRetriever and Reranker (spec.md §4.5):
// dense + lexical search across the three vector collections, fused by
// Reciprocal Rank Fusion, reranked by a pluggable Reranker. Grounded on
// internal/rag/retrieve/{fusion.go,candidates.go,rerank.go} of the teacher,
// generalized from a 2-source (ft+vec) fusion to the 3-collection x
// 2-method fan-in spec.md §4.5/§5 calls for.
package retrieve

import (
	"context"
	"sort"
	"sync"

	"github.com/vertigo15/docengine/internal/capabilities"
	"github.com/vertigo15/docengine/internal/docmodel"
)

// Candidate is one item surfaced by HybridRetriever before reranking.
type Candidate struct {
	ChunkID    string
	Collection string
	Score      float64
	Payload    map[string]any
}

// Collections names the three vector collections in priority order for
// tie-breaking (chunks > qa > summaries, per spec.md §4.5).
var Collections = []string{
	docmodel.CollectionChunks,
	docmodel.CollectionQA,
	docmodel.CollectionSummaries,
}

func collectionPriority(name string) int {
	for i, c := range Collections {
		if c == name {
			return i
		}
	}
	return len(Collections)
}

// Retriever fans dense+lexical search requests across three VectorIndex
// instances (one per collection) and fuses the results.
type Retriever struct {
	Indexes map[string]capabilities.VectorIndex // collection name -> index
	RRFK    int
}

// NewRetriever constructs a Retriever with the documented default rrfK=60
// when rrfK <= 0.
func NewRetriever(indexes map[string]capabilities.VectorIndex, rrfK int) *Retriever {
	if rrfK <= 0 {
		rrfK = 60
	}
	return &Retriever{Indexes: indexes, RRFK: rrfK}
}

// SourceCounts mirrors the DebugData search_sources field (spec.md §3),
// minus after_merge which the caller fills in once fusion completes.
type SourceCounts struct {
	VectorChunks    int
	VectorSummaries int
	VectorQA        int
	KeywordBM25     int
}

// rankedList is one of the six (three collections x two methods) ranked
// lists contributed to fusion.
type rankedList struct {
	collection string
	hits       []capabilities.VectorHit
	err        error
}

// Search performs dense cosine search and lexical search against each of
// the three collections concurrently (six fetches fanned into fusion, per
// spec.md §5), fuses with RRF, and returns the deduped, sorted, truncated
// candidate list plus the per-source counts.
func (r *Retriever) Search(ctx context.Context, queryText string, queryEmbedding []float32, topK int, docFilter []string) ([]Candidate, SourceCounts, int, error) {
	filter := map[string]string{}

	type fetch struct {
		collection string
		dense      bool
	}
	var fetches []fetch
	for _, c := range Collections {
		fetches = append(fetches, fetch{c, true}, fetch{c, false})
	}

	results := make([]rankedList, len(fetches))
	var wg sync.WaitGroup
	for i, fe := range fetches {
		wg.Add(1)
		go func(i int, fe fetch) {
			defer wg.Done()
			idx, ok := r.Indexes[fe.collection]
			if !ok {
				results[i] = rankedList{collection: fe.collection}
				return
			}
			var hits []capabilities.VectorHit
			var err error
			if fe.dense {
				hits, err = idx.DenseSearch(ctx, queryEmbedding, topK, filter)
			} else {
				hits, err = idx.LexicalSearch(ctx, queryText, topK, filter)
			}
			results[i] = rankedList{collection: fe.collection, hits: hits, err: err}
		}(i, fe)
	}
	wg.Wait()

	var counts SourceCounts
	denseByCollection := map[string][]capabilities.VectorHit{}
	lexicalByCollection := map[string][]capabilities.VectorHit{}
	for i, fe := range fetches {
		rl := results[i]
		if rl.err != nil {
			continue
		}
		if fe.dense {
			denseByCollection[fe.collection] = rl.hits
			switch fe.collection {
			case docmodel.CollectionChunks:
				counts.VectorChunks = len(rl.hits)
			case docmodel.CollectionSummaries:
				counts.VectorSummaries = len(rl.hits)
			case docmodel.CollectionQA:
				counts.VectorQA = len(rl.hits)
			}
		} else {
			counts.KeywordBM25 += len(rl.hits)
			lexicalByCollection[fe.collection] = rl.hits
		}
	}

	fused, afterMerge := fuseRRF(denseByCollection, lexicalByCollection, r.RRFK, docFilter)

	if topK <= 0 {
		topK = 10
	}
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, counts, afterMerge, nil
}

// fuseRRF performs Reciprocal Rank Fusion across the six ranked lists
// (dense x3, lexical x3), deduping by chunk_id and summing contributions,
// then sorts by fused score desc with tie-breaks: collection priority
// (chunks > qa > summaries), then doc_id lexicographic, then chunk_id
// (spec.md §4.5).
func fuseRRF(dense, lexical map[string][]capabilities.VectorHit, k int, docFilter []string) ([]Candidate, int) {
	type acc struct {
		score      float64
		collection string
		payload    map[string]any
	}
	byID := map[string]*acc{}

	contribute := func(hits []capabilities.VectorHit, collection string) {
		for rank, h := range hits {
			contrib := 1.0 / float64(k+rank+1)
			a, ok := byID[h.ChunkID]
			if !ok {
				a = &acc{collection: collection, payload: h.Payload}
				byID[h.ChunkID] = a
			}
			a.score += contrib
			if a.payload == nil {
				a.payload = h.Payload
			}
		}
	}
	for _, c := range Collections {
		contribute(dense[c], c)
	}
	for _, c := range Collections {
		contribute(lexical[c], c)
	}

	if len(docFilter) > 0 {
		allowed := map[string]bool{}
		for _, d := range docFilter {
			allowed[d] = true
		}
		for id, a := range byID {
			docID, _ := a.payload["doc_id"].(string)
			if !allowed[docID] {
				delete(byID, id)
			}
		}
	}

	afterMerge := len(byID)

	out := make([]Candidate, 0, len(byID))
	for id, a := range byID {
		out = append(out, Candidate{ChunkID: id, Collection: a.collection, Score: a.score, Payload: a.payload})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		pi, pj := collectionPriority(out[i].Collection), collectionPriority(out[j].Collection)
		if pi != pj {
			return pi < pj
		}
		di, _ := out[i].Payload["doc_id"].(string)
		dj, _ := out[j].Payload["doc_id"].(string)
		if di != dj {
			return di < dj
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out, afterMerge
}
