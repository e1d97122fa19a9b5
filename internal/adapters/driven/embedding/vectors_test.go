package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1, 2}, Float32([]float64{0.5, -1, 2}))
	assert.Empty(t, Float32(nil))
}

func TestCheck(t *testing.T) {
	nan := float32(math.NaN())

	tests := []struct {
		name    string
		inputs  int
		vectors [][]float32
		dims    int
		wantErr string
	}{
		{name: "ok", inputs: 2, vectors: [][]float32{{1, 0}, {0, 1}}},
		{name: "ok with dims", inputs: 1, vectors: [][]float32{{1, 0, 0}}, dims: 3},
		{name: "count mismatch", inputs: 2, vectors: [][]float32{{1}}, wantErr: "expected 2 embeddings, got 1"},
		{name: "empty vector", inputs: 1, vectors: [][]float32{{}}, wantErr: "empty embedding"},
		{name: "inconsistent", inputs: 2, vectors: [][]float32{{1, 0}, {1}}, wantErr: "has 1 dimensions"},
		{name: "wrong dims", inputs: 1, vectors: [][]float32{{1, 0}}, dims: 3, wantErr: "expected 3"},
		{name: "nan", inputs: 1, vectors: [][]float32{{nan}}, wantErr: "non-finite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.inputs, tt.vectors, tt.dims)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
