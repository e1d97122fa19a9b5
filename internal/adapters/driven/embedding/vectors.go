// Package embedding holds helpers shared by the embedding adapters.
package embedding

import (
	"fmt"
	"math"
)

// Float32 converts a JSON-decoded vector to float32.
func Float32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Check verifies a provider returned one usable vector per input.
// dims is the expected dimension, or zero to only require consistency.
func Check(inputs int, vectors [][]float32, dims int) error {
	if len(vectors) != inputs {
		return fmt.Errorf("expected %d embeddings, got %d", inputs, len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("empty embedding for input %d", i)
		}
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims {
			return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), dims)
		}
		if !finite(v) {
			return fmt.Errorf("embedding %d contains non-finite values", i)
		}
	}
	return nil
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
