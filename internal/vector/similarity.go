package vector

import "math"

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
// Returns ErrDimensionMismatch if the lengths differ. If either vector has
// zero norm the result is 0: a zero vector never wins a ranking, but it must
// not crash one either.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// CosineDistance returns 1 minus the cosine similarity, so smaller is closer.
// Dimension checking is the caller's responsibility; mismatched or zero-norm
// inputs yield the maximum distance of 1.
func CosineDistance(a, b []float32) float64 {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 1
	}
	return 1 - sim
}

// L2Norm returns the Euclidean norm of x.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
