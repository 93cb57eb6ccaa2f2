package domain

import "math"

// CosineSimilarity returns the cosine of the angle between a and b:
// dot(a,b) / (|a|*|b|). Defined as 0 when either norm is zero or when the
// dimensions disagree, so a malformed stored vector never panics a scan.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
