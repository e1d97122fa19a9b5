package driven

import "github.com/custodia-labs/safety-consultant/internal/core/domain"

// ChunkSplitter cuts a source document into bounded, overlapping chunks.
type ChunkSplitter interface {
	// Split returns the chunks of doc in position order.
	// A document with no text yields no chunks.
	Split(doc *domain.SourceDocument) []domain.Chunk
}
