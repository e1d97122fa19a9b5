package domain

import "time"

// ManifestEntry records what the index holds for one source document.
// The manifest lets a build skip files whose content has not changed.
type ManifestEntry struct {
	// SourceName is the document name relative to the corpus directory.
	SourceName string

	// ContentHash is the hex SHA-256 of the file bytes that were indexed.
	ContentHash string

	// Format is the file format the source was loaded as.
	Format Format

	// ChunkIDs lists the chunks of this source, in position order.
	ChunkIDs []string

	// IndexedAt is when the source was last embedded.
	IndexedAt time.Time
}
