// Package similarity ranks documents by the cosine similarity of their
// full-document embeddings over an in-memory snapshot.
package similarity

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched lengths, empty vectors and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}

	sim := dot / math.Sqrt(na2*nb2)
	return math.Max(-1, math.Min(1, sim))
}

// Round keeps three decimals, the precision similarities are reported with.
func Round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
