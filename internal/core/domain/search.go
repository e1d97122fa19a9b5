package domain

// SearchHit is a chunk returned by a nearest-neighbour search.
type SearchHit struct {
	// Chunk is the matched chunk.
	Chunk Chunk `json:"chunk"`

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float64 `json:"similarity"`
}

// RetrievalResult is an ordered list of hits, best first.
type RetrievalResult []SearchHit

// SourceNames returns the distinct source names in rank order.
// It never returns nil, so an empty result encodes as an empty list.
func (r RetrievalResult) SourceNames() []string {
	names := make([]string, 0, len(r))
	seen := make(map[string]bool, len(r))
	for _, hit := range r {
		if seen[hit.Chunk.SourceName] {
			continue
		}
		seen[hit.Chunk.SourceName] = true
		names = append(names, hit.Chunk.SourceName)
	}
	return names
}

// Above returns the hits whose similarity is strictly greater than threshold.
// Order is preserved.
func (r RetrievalResult) Above(threshold float64) RetrievalResult {
	out := make(RetrievalResult, 0, len(r))
	for _, hit := range r {
		if hit.Similarity > threshold {
			out = append(out, hit)
		}
	}
	return out
}
