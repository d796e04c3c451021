package ai

import "math"

// NormalizeVector returns v scaled to unit length. Stored and query vectors
// are compared by dot product, which equals cosine similarity only for unit
// vectors. A zero vector is returned as a new zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	result := make([]float32, len(v))
	if sumSquares == 0 {
		return result
	}
	norm := float32(1 / math.Sqrt(sumSquares))
	for i, val := range v {
		result[i] = val * norm
	}
	return result
}
