package atomspace

import "math"

const normEps = 1e-10

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Cosine returns the cosine similarity of two vectors, or 0 when lengths
// differ or either norm vanishes.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom < normEps {
		return 0
	}
	return dot / denom
}

// Softmax normalizes values in place with max-subtraction for stability.
func Softmax(values []float64) {
	if len(values) == 0 {
		return
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range values {
		values[i] = math.Exp(v - max)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
}
