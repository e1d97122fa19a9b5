package normalisers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/normalisers/docx"
	"github.com/custodia-labs/safety-consultant/internal/normalisers/pdf"
	"github.com/custodia-labs/safety-consultant/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.DocumentLoader = (*Registry)(nil)

// Registry holds one normaliser per supported format.
type Registry struct {
	pdf  driven.Normaliser
	docx driven.Normaliser
	txt  driven.Normaliser
}

// NewRegistry creates a registry with the built-in normalisers.
func NewRegistry() *Registry {
	return &Registry{
		pdf:  pdf.New(),
		docx: docx.New(),
		txt:  plaintext.New(),
	}
}

// Register replaces the normaliser for its format.
func (r *Registry) Register(n driven.Normaliser) error {
	switch n.Format() {
	case domain.FormatPDF:
		r.pdf = n
	case domain.FormatDOCX:
		r.docx = n
	case domain.FormatTXT:
		r.txt = n
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, n.Format())
	}
	return nil
}

// For returns the normaliser handling format.
func (r *Registry) For(format domain.Format) (driven.Normaliser, error) {
	switch format {
	case domain.FormatPDF:
		return r.pdf, nil
	case domain.FormatDOCX:
		return r.docx, nil
	case domain.FormatTXT:
		return r.txt, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, format)
	}
}

// Load reads the file at path and extracts its text.
func (r *Registry) Load(ctx context.Context, path, name string) (*domain.SourceDocument, error) {
	format, err := domain.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	normaliser, err := r.For(format)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}

	text, err := normaliser.Normalise(ctx, content)
	if err != nil {
		return nil, &domain.LoadError{Path: path, Err: err}
	}

	sum := sha256.Sum256(content)
	return &domain.SourceDocument{
		Path:        path,
		Name:        name,
		Format:      format,
		Text:        text,
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}
