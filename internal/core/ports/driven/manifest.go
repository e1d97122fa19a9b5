package driven

import (
	"context"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// ManifestStore records which source files the persisted index was built from.
type ManifestStore interface {
	// List returns every manifest entry, ordered by source name.
	List(ctx context.Context) ([]domain.ManifestEntry, error)

	// Replace swaps the whole manifest for entries in a single transaction.
	Replace(ctx context.Context, entries []domain.ManifestEntry) error

	// Close releases resources.
	Close() error
}
