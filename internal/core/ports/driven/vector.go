package driven

import (
	"context"

	"github.com/custodia-labs/safety-consultant/internal/vectorindex"
)

// IndexStore persists the vector index.
type IndexStore interface {
	// Load reads the most recently persisted index.
	// Returns domain.ErrIndexNotFound when nothing has been persisted yet.
	Load(ctx context.Context) (*vectorindex.Index, error)

	// Persist writes idx atomically. A crash mid-write leaves the
	// previously persisted index intact.
	Persist(ctx context.Context, idx *vectorindex.Index) error

	// Location describes where the index lives, for messages.
	Location() string
}
