// Package testutil provides deterministic fakes for every capability port,
// for use in package tests that must not depend on a live external
// service, grounded on internal/rag/embedder/embedder.go's
// deterministicEmbedder and internal/rag/retrieve/rerank.go's NoopReranker.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
)

// DeterministicEmbedder hashes byte 3-grams of its input into a fixed-size
// vector and optionally L2-normalizes, giving reproducible embeddings
// without a live model.
type DeterministicEmbedder struct {
	Dim       int
	Normalize bool
	Seed      uint64
}

// NewDeterministicEmbedder constructs a DeterministicEmbedder with a
// default dimension of 64 when dim <= 0.
func NewDeterministicEmbedder(dim int, normalize bool, seed uint64) *DeterministicEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &DeterministicEmbedder{Dim: dim, Normalize: normalize, Seed: seed}
}

func (d *DeterministicEmbedder) Dimension() int { return d.Dim }

func (d *DeterministicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *DeterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.Dim)
	if len(s) == 0 {
		return v
	}
	b := []byte(s)
	if len(b) < 3 {
		addGram(d.Seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.Seed, b[i:i+3], v)
		}
	}
	if d.Normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
