// Package docx extracts plain text from Office Open XML word documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// documentPart is the archive member holding the main document body.
const documentPart = "word/document.xml"

// ErrNoDocumentPart indicates the archive has no main document body.
var ErrNoDocumentPart = errors.New("docx: missing " + documentPart)

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Format returns the format this normaliser handles.
func (n *Normaliser) Format() domain.Format {
	return domain.FormatDOCX
}

// Normalise returns the paragraph text of the document in document order,
// one paragraph per line. Paragraphs inside tables are included where
// they appear.
func (n *Normaliser) Normalise(_ context.Context, content []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != documentPart {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", documentPart, err)
		}
		defer rc.Close()

		return extractParagraphs(rc)
	}
	return "", ErrNoDocumentPart
}

// extractParagraphs streams the document XML, collecting w:t text and
// ending a line at each w:p. Tabs and breaks inside runs are preserved.
func extractParagraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var (
		result    strings.Builder
		paragraph strings.Builder
		inText    bool
		started   bool
	)

	flush := func() {
		if started {
			result.WriteString("\n")
		}
		result.WriteString(strings.TrimRight(paragraph.String(), " \t"))
		paragraph.Reset()
		started = true
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", documentPart, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				paragraph.WriteString("\t")
			case "br", "cr":
				paragraph.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				paragraph.Write(el)
			}
		}
	}

	return strings.TrimSpace(result.String()), nil
}
