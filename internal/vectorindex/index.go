// Package vectorindex is an immutable, persistable collection of chunk
// embeddings with exact nearest-neighbour search under cosine similarity.
//
// Every operation that changes the collection returns a new *Index and
// leaves the receiver untouched, so a loaded index can be shared by
// concurrent readers while a build prepares its successor.
package vectorindex

import (
	"fmt"
	"math"
	"slices"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// Index holds L2-normalised vectors and their chunks in insertion order.
type Index struct {
	model   string
	dim     int
	chunks  []domain.Chunk
	vectors [][]float32
}

// Option configures index creation.
type Option func(*Index)

// WithModel records the embedding model name the vectors came from.
func WithModel(name string) Option {
	return func(idx *Index) {
		idx.model = name
	}
}

// Create builds an index from a non-empty batch of entries.
// All vectors must share one dimension.
func Create(entries []domain.IndexEntry, opts ...Option) (*Index, error) {
	if len(entries) == 0 {
		return nil, domain.ErrEmptyIndex
	}

	idx := &Index{dim: len(entries[0].Vector)}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", domain.ErrInvalidInput)
	}

	return idx.with(entries)
}

// Add returns a new index holding the receiver's entries followed by entries.
// Existing vectors are reused, never recomputed.
func (idx *Index) Add(entries []domain.IndexEntry) (*Index, error) {
	if len(entries) == 0 {
		return idx, nil
	}
	return idx.with(entries)
}

func (idx *Index) with(entries []domain.IndexEntry) (*Index, error) {
	n := len(idx.chunks) + len(entries)
	next := &Index{
		model:   idx.model,
		dim:     idx.dim,
		chunks:  make([]domain.Chunk, len(idx.chunks), n),
		vectors: make([][]float32, len(idx.vectors), n),
	}
	copy(next.chunks, idx.chunks)
	copy(next.vectors, idx.vectors)

	for i := range entries {
		if len(entries[i].Vector) != idx.dim {
			return nil, &domain.DimensionMismatchError{Want: idx.dim, Got: len(entries[i].Vector)}
		}
		vec, err := normalise(entries[i].Vector)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", entries[i].Chunk.ID, err)
		}
		next.chunks = append(next.chunks, entries[i].Chunk)
		next.vectors = append(next.vectors, vec)
	}
	return next, nil
}

// Remove returns a new index without the chunks of the named sources.
// The relative order of the remaining entries is preserved.
func (idx *Index) Remove(sourceNames ...string) *Index {
	drop := make(map[string]bool, len(sourceNames))
	for _, name := range sourceNames {
		drop[name] = true
	}

	next := &Index{model: idx.model, dim: idx.dim}
	for i := range idx.chunks {
		if drop[idx.chunks[i].SourceName] {
			continue
		}
		next.chunks = append(next.chunks, idx.chunks[i])
		next.vectors = append(next.vectors, idx.vectors[i])
	}
	return next
}

// Search returns the k entries most similar to query, best first.
// Ties keep insertion order. When k exceeds the index size every entry is returned.
func (idx *Index) Search(query []float32, k int) (domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if len(query) != idx.dim {
		return nil, &domain.DimensionMismatchError{Want: idx.dim, Got: len(query)}
	}
	q, err := normalise(query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	hits := make(domain.RetrievalResult, len(idx.chunks))
	for i, vec := range idx.vectors {
		hits[i] = domain.SearchHit{Chunk: idx.chunks[i], Similarity: dot(q, vec)}
	}

	slices.SortStableFunc(hits, func(a, b domain.SearchHit) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Dimensions returns the shared vector dimension.
func (idx *Index) Dimensions() int {
	return idx.dim
}

// Model returns the embedding model name recorded at creation.
func (idx *Index) Model() string {
	return idx.model
}

// Sources returns the distinct source names in first-insertion order.
func (idx *Index) Sources() []string {
	var names []string
	seen := make(map[string]bool)
	for i := range idx.chunks {
		if !seen[idx.chunks[i].SourceName] {
			seen[idx.chunks[i].SourceName] = true
			names = append(names, idx.chunks[i].SourceName)
		}
	}
	return names
}

// Chunks returns a copy of the stored chunks in insertion order.
func (idx *Index) Chunks() []domain.Chunk {
	return slices.Clone(idx.chunks)
}

func normalise(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: vector has no direction", domain.ErrInvalidInput)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
