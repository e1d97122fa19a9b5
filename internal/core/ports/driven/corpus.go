package driven

import (
	"context"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// Corpus enumerates the documents directory. It never writes to it.
type Corpus interface {
	// Scan lists every visible regular file, sorted by name.
	// Unsupported files are included with a zero Format so callers can count them.
	Scan(ctx context.Context) ([]domain.CorpusFile, error)

	// Root returns the documents directory.
	Root() string
}
