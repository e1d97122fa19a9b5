package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported corpus file format.
// The set is closed: every switch over Format must handle all variants.
type Format int

// Supported formats.
const (
	// FormatPDF is a Portable Document Format file.
	FormatPDF Format = iota + 1

	// FormatDOCX is an Office Open XML word processing document.
	FormatDOCX

	// FormatTXT is a UTF-8 plain text file.
	FormatTXT
)

// Formats returns every supported format in declaration order.
func Formats() []Format {
	return []Format{FormatPDF, FormatDOCX, FormatTXT}
}

// FormatFromPath maps a file path to its format by extension.
// Returns ErrUnsupportedFormat for any extension outside the closed set.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".txt":
		return FormatTXT, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// String returns the lower-case format name.
func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatTXT:
		return "txt"
	default:
		return "unknown"
	}
}

// IsValid returns true if the format is one of the supported variants.
func (f Format) IsValid() bool {
	switch f {
	case FormatPDF, FormatDOCX, FormatTXT:
		return true
	default:
		return false
	}
}

// SourceDocument is the plain text of one corpus file.
// It is created by a loader and discarded once split into chunks.
type SourceDocument struct {
	// Path is the absolute path the document was read from.
	Path string

	// Name identifies the document for citation. It is the path
	// relative to the documents directory, using forward slashes.
	Name string

	// Format is the detected file format.
	Format Format

	// Text is the extracted plain text.
	Text string

	// ContentHash is the hex SHA-256 of the raw file bytes.
	ContentHash string
}

// Chunk is a bounded window of a source document's text and the unit of retrieval.
type Chunk struct {
	// ID is the stable identifier for the chunk.
	ID string `json:"id"`

	// SourceName names the SourceDocument the chunk was cut from.
	SourceName string `json:"source_name"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Offset is the character (rune) offset of Text within the source text.
	Offset int `json:"char_offset"`

	// Position is the ordinal position of the chunk within its source.
	Position int `json:"position"`
}

// IndexEntry pairs a chunk with its embedding. It is the unit stored in the vector index.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
}
