package facematch

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// EuclideanDistance computes the L2 distance between two descriptors.
// Descriptors of different or zero length are infinitely far apart.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return floats.Distance(widen(a), widen(b), 2)
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
// Descriptors of different or zero length and zero vectors have no direction
// to compare and are infinitely far apart.
func CosineDistance(a, b Descriptor) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	va, vb := widen(a), widen(b)
	normA, normB := floats.Norm(va, 2), floats.Norm(vb, 2)
	if normA == 0 || normB == 0 {
		return math.Inf(1)
	}

	similarity := floats.Dot(va, vb) / (normA * normB)
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

func widen(d Descriptor) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}
