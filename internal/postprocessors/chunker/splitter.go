// Package chunker splits document text into bounded, overlapping chunks.
package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// DefaultMaxChars is the default maximum number of characters per chunk.
const DefaultMaxChars = 1000

// DefaultOverlapChars is the default number of overlapping characters.
const DefaultOverlapChars = 200

// separators are tried in order: paragraph, line, sentence, word.
// A chunk is hard cut only when none of them occurs in an oversized span.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// chunkNamespace seeds the name-based chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("consultant:chunk"))

// Segment is a piece of text and its rune offset in the source.
type Segment struct {
	Text   string
	Offset int
}

// Splitter divides text recursively on separators.
// Every chunk after the first starts with the trailing overlap characters
// of the chunk before it, and no chunk is longer than maxChars runes.
type Splitter struct {
	maxChars int
	overlap  int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithMaxChars sets the maximum chunk length in characters.
func WithMaxChars(n int) Option {
	return func(s *Splitter) {
		s.maxChars = n
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(n int) Option {
	return func(s *Splitter) {
		s.overlap = n
	}
}

// New creates a splitter. The overlap must be smaller than the maximum length.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		maxChars: DefaultMaxChars,
		overlap:  DefaultOverlapChars,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.maxChars <= 0 {
		return nil, fmt.Errorf("%w: max chars must be positive, got %d", domain.ErrInvalidInput, s.maxChars)
	}
	if s.overlap < 0 || s.overlap >= s.maxChars {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrInvalidInput, s.overlap, s.maxChars)
	}
	return s, nil
}

// Split is a shorthand for New followed by Segments.
func Split(text string, maxChars, overlapChars int) ([]Segment, error) {
	s, err := New(WithMaxChars(maxChars), WithOverlap(overlapChars))
	if err != nil {
		return nil, err
	}
	return s.Segments(text), nil
}

// MaxChars returns the configured maximum chunk length.
func (s *Splitter) MaxChars() int { return s.maxChars }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts a source document into ordered chunks with stable IDs.
// Blank documents yield no chunks.
func (s *Splitter) Split(doc *domain.SourceDocument) []domain.Chunk {
	segments := s.Segments(doc.Text)
	if len(segments) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = domain.Chunk{
			ID:         ChunkID(doc.Name, doc.ContentHash, i),
			SourceName: doc.Name,
			Text:       seg.Text,
			Offset:     seg.Offset,
			Position:   i,
		}
	}
	return chunks
}

// Segments splits text into overlapping windows.
func (s *Splitter) Segments(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Bodies are the non-overlapping parts. Leaving room for the overlap
	// prefix keeps every window within maxChars.
	limit := s.maxChars - s.overlap
	bodies := merge(splitRecursive(text, separators, limit), limit)

	lastText := len(bodies) - 1
	for lastText >= 0 && strings.TrimSpace(bodies[lastText]) == "" {
		lastText--
	}

	runes := []rune(text)
	segments := make([]Segment, 0, len(bodies))
	offset := 0
	for i, body := range bodies {
		n := utf8.RuneCountInString(body)
		start := offset
		end := offset + n
		offset = end

		// Leading and trailing blank bodies are dropped. Blank bodies in
		// the middle are kept so the overlap chain stays unbroken.
		if strings.TrimSpace(body) == "" && (len(segments) == 0 || i > lastText) {
			continue
		}
		if len(segments) > 0 {
			start = max(segments[len(segments)-1].Offset, start-s.overlap)
		}
		segments = append(segments, Segment{
			Text:   string(runes[start:end]),
			Offset: start,
		})
	}
	return segments
}

// ChunkID derives a deterministic ID from the source, its content hash
// and the chunk position, so an unchanged file always yields the same IDs.
func ChunkID(sourceName, contentHash string, position int) string {
	name := sourceName + "\x00" + contentHash + "\x00" + strconv.Itoa(position)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// splitRecursive breaks text into pieces of at most limit runes.
// Separators stay attached to the piece they end, so the pieces
// concatenate back to the input.
func splitRecursive(text string, seps []string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardCut(text, limit)
	}
	if !strings.Contains(text, seps[0]) {
		return splitRecursive(text, seps[1:], limit)
	}

	var pieces []string
	for _, part := range strings.SplitAfter(text, seps[0]) {
		if part == "" {
			continue
		}
		pieces = append(pieces, splitRecursive(part, seps[1:], limit)...)
	}
	return pieces
}

func hardCut(text string, limit int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// merge joins adjacent pieces greedily while they fit within limit.
func merge(pieces []string, limit int) []string {
	var (
		bodies []string
		cur    strings.Builder
		curLen int
	)
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+n > limit {
			bodies = append(bodies, cur.String())
			cur.Reset()
			curLen = 0
		}
		cur.WriteString(p)
		curLen += n
	}
	if curLen > 0 {
		bodies = append(bodies, cur.String())
	}
	return bodies
}
