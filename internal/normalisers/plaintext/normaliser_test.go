package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, domain.FormatTXT, New().Format())
}

func TestNormalise(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"ascii", []byte("Wear a hard hat."), "Wear a hard hat."},
		{"cyrillic", []byte("Что делать при пожаре?"), "Что делать при пожаре?"},
		{"bom stripped", append([]byte{0xEF, 0xBB, 0xBF}, "Exit"...), "Exit"},
		{"crlf", []byte("one\r\ntwo\rthree"), "one\ntwo\nthree"},
		{"invalid utf8", []byte{'a', 0xFF, 'b'}, "a�b"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Normalise(context.Background(), tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalise_Binary(t *testing.T) {
	_, err := New().Normalise(context.Background(), []byte{'P', 'K', 0x03, 0x04, 0x00})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
