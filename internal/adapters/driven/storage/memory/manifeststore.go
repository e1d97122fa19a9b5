package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
)

// Ensure ManifestStore implements the interface.
var _ driven.ManifestStore = (*ManifestStore)(nil)

// ManifestStore is an in-memory implementation of driven.ManifestStore.
type ManifestStore struct {
	mu      sync.RWMutex
	entries []domain.ManifestEntry

	// ReplaceErr, when set, is returned by Replace without storing anything.
	ReplaceErr error
}

// NewManifestStore creates an empty in-memory manifest.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{}
}

// List returns a copy of the manifest ordered by source name.
func (s *ManifestStore) List(_ context.Context) ([]domain.ManifestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries), nil
}

// Replace stores a copy of entries.
func (s *ManifestStore) Replace(_ context.Context, entries []domain.ManifestEntry) error {
	if s.ReplaceErr != nil {
		return s.ReplaceErr
	}
	sorted := cloneEntries(entries)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].SourceName, sorted[j].SourceName) < 0
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = sorted
	return nil
}

// Close is a no-op.
func (s *ManifestStore) Close() error {
	return nil
}

func cloneEntries(in []domain.ManifestEntry) []domain.ManifestEntry {
	out := make([]domain.ManifestEntry, len(in))
	for i, e := range in {
		e.ChunkIDs = slices.Clone(e.ChunkIDs)
		out[i] = e
	}
	return out
}
