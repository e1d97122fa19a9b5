// Package indexdir stores the vector index as a single file in the index directory.
package indexdir

import (
	"context"
	"path/filepath"

	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/logger"
	"github.com/custodia-labs/safety-consultant/internal/vectorindex"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

// Store persists the index under dir using the vectorindex file format.
type Store struct {
	dir string
}

// New creates a store for dir. The directory is created on first persist.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads the persisted index. Returns domain.ErrIndexNotFound on first run.
func (s *Store) Load(ctx context.Context) (*vectorindex.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := vectorindex.Load(s.dir)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded index from %s: %d entries, %d dimensions", s.Location(), idx.Len(), idx.Dimensions())
	return idx, nil
}

// Persist writes idx atomically.
func (s *Store) Persist(ctx context.Context, idx *vectorindex.Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return vectorindex.Persist(idx, s.dir)
}

// Location returns the index file path.
func (s *Store) Location() string {
	return filepath.Join(s.dir, vectorindex.FileName)
}
