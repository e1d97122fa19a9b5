package driven

import (
	"context"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// Normaliser extracts plain text from the bytes of one file format.
type Normaliser interface {
	// Format returns the file format this normaliser handles.
	Format() domain.Format

	// Normalise returns the plain text of content.
	// A malformed file returns an error; an empty document returns "".
	Normalise(ctx context.Context, content []byte) (string, error)
}

// DocumentLoader turns a corpus file into a SourceDocument.
type DocumentLoader interface {
	// Load reads and normalises the file at path. name is the citation
	// name recorded on the document.
	// Returns domain.ErrUnsupportedFormat for unknown extensions and a
	// *domain.LoadError when the file cannot be read or parsed.
	Load(ctx context.Context, path, name string) (*domain.SourceDocument, error)
}
