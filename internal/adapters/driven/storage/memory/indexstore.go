package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/vectorindex"
)

// Ensure IndexStore implements the interface.
var _ driven.IndexStore = (*IndexStore)(nil)

// IndexStore keeps the "persisted" index in memory. Indexes are immutable,
// so holding the pointer is equivalent to holding a copy.
type IndexStore struct {
	mu       sync.RWMutex
	idx      *vectorindex.Index
	persists int

	// PersistErr, when set, makes Persist fail with a domain.PersistError.
	PersistErr error
}

// NewIndexStore creates an empty in-memory index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{}
}

// Load returns the stored index or domain.ErrIndexNotFound.
func (s *IndexStore) Load(_ context.Context) (*vectorindex.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.idx == nil {
		return nil, domain.ErrIndexNotFound
	}
	return s.idx, nil
}

// Persist stores idx unless PersistErr is set.
func (s *IndexStore) Persist(_ context.Context, idx *vectorindex.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PersistErr != nil {
		return &domain.PersistError{Dir: s.Location(), Err: s.PersistErr}
	}
	s.idx = idx
	s.persists++
	return nil
}

// Persists returns the number of successful Persist calls.
func (s *IndexStore) Persists() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persists
}

// Location returns a marker for the in-memory store.
func (s *IndexStore) Location() string {
	return ":memory:"
}
