package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

const safetyText = `Fire Safety

In case of fire, activate the nearest fire alarm and evacuate using the stairs. Do not use elevators during a fire. Assemble at the designated assembly point in the car park.

Electrical Safety

Isolate electrical equipment before maintenance. Lock out and tag out every energy source! Only qualified electricians may open distribution boards. Are the gloves rated for the voltage? Check before every job.

Working at Height

Use a harness above two metres. Inspect ladders before use and maintain three points of contact at all times.`

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxChars, s.MaxChars())
		assert.Equal(t, DefaultOverlapChars, s.Overlap())
	})

	tests := []struct {
		name    string
		max     int
		overlap int
		wantErr bool
	}{
		{"valid", 100, 20, false},
		{"zero overlap", 100, 0, false},
		{"overlap equals max", 100, 100, true},
		{"overlap exceeds max", 100, 150, true},
		{"negative overlap", 100, -1, true},
		{"zero max", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithMaxChars(tt.max), WithOverlap(tt.overlap))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSegments_BlankInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t \n"} {
		segs, err := Split(text, 100, 10)
		require.NoError(t, err)
		assert.Empty(t, segs, "input %q", text)
	}
}

func TestSegments_ShortTextIsOneChunk(t *testing.T) {
	segs, err := Split("Wear eye protection.", 100, 10)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "Wear eye protection.", segs[0].Text)
	assert.Equal(t, 0, segs[0].Offset)
}

func TestSegments_BoundsAndOverlap(t *testing.T) {
	configs := []struct{ max, overlap int }{
		{50, 10},
		{80, 0},
		{120, 30},
		{200, 199},
		{1000, 200},
	}
	for _, cfg := range configs {
		segs, err := Split(safetyText, cfg.max, cfg.overlap)
		require.NoError(t, err)
		require.NotEmpty(t, segs)

		for i, seg := range segs {
			assert.LessOrEqual(t, utf8.RuneCountInString(seg.Text), cfg.max, "chunk %d too long", i)
			if i == 0 {
				continue
			}
			prev := []rune(segs[i-1].Text)
			cur := []rune(seg.Text)
			n := min(cfg.overlap, len(prev))
			require.GreaterOrEqual(t, len(cur), n)
			assert.Equal(t, string(prev[len(prev)-n:]), string(cur[:n]),
				"max=%d overlap=%d chunk %d", cfg.max, cfg.overlap, i)
		}
	}
}

func TestSegments_OffsetsPointIntoSource(t *testing.T) {
	segs, err := Split(safetyText, 90, 15)
	require.NoError(t, err)

	runes := []rune(safetyText)
	for _, seg := range segs {
		n := utf8.RuneCountInString(seg.Text)
		assert.Equal(t, string(runes[seg.Offset:seg.Offset+n]), seg.Text)
	}
}

func TestSegments_CoversWholeText(t *testing.T) {
	segs, err := Split(safetyText, 90, 15)
	require.NoError(t, err)

	last := segs[len(segs)-1]
	assert.Equal(t, utf8.RuneCountInString(safetyText), last.Offset+utf8.RuneCountInString(last.Text))
}

func TestSegments_PrefersParagraphs(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)
	segs, err := Split(text, 60, 0)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, strings.Repeat("a", 40)+"\n\n", segs[0].Text)
	assert.Equal(t, strings.Repeat("b", 40), segs[1].Text)
}

func TestSegments_PrefersSentences(t *testing.T) {
	text := "Keep exits clear. Store fuel outside. Report leaks."
	segs, err := Split(text, 25, 0)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "Keep exits clear. ", segs[0].Text)
	assert.Equal(t, "Store fuel outside. ", segs[1].Text)
	assert.Equal(t, "Report leaks.", segs[2].Text)
}

func TestSegments_HardCutWithoutSeparators(t *testing.T) {
	text := strings.Repeat("x", 25)
	segs, err := Split(text, 10, 0)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, "xxxxxxxxxx", segs[0].Text)
	assert.Equal(t, "xxxxx", segs[2].Text)
	assert.Equal(t, 20, segs[2].Offset)
}

func TestSegments_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ü", 30)
	segs, err := Split(text, 10, 2)
	require.NoError(t, err)
	for _, seg := range segs {
		assert.True(t, utf8.ValidString(seg.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(seg.Text), 10)
	}
}

func TestSplitter_Split(t *testing.T) {
	s, err := New(WithMaxChars(120), WithOverlap(20))
	require.NoError(t, err)

	doc := &domain.SourceDocument{
		Name:        "fire.txt",
		ContentHash: "abc123",
		Text:        safetyText,
	}

	chunks := s.Split(doc)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, "fire.txt", c.SourceName)
		assert.Equal(t, i, c.Position)
		assert.Equal(t, ChunkID("fire.txt", "abc123", i), c.ID)
	}

	again := s.Split(doc)
	assert.Equal(t, chunks, again, "splitting is deterministic")
}

func TestSplitter_Split_Empty(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	assert.Empty(t, s.Split(&domain.SourceDocument{Name: "empty.txt"}))
}

func TestChunkID(t *testing.T) {
	id := ChunkID("a.pdf", "h1", 0)
	assert.Equal(t, id, ChunkID("a.pdf", "h1", 0))
	assert.NotEqual(t, id, ChunkID("a.pdf", "h1", 1))
	assert.NotEqual(t, id, ChunkID("a.pdf", "h2", 0))
	assert.NotEqual(t, id, ChunkID("b.pdf", "h1", 0))
}
