package model

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// A zero-length or zero-norm input scores 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	length := min(len(a), len(b))
	for i := 0; i < length; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZeroVector reports whether v carries no direction. Queries with such a vector
// ask the store for metadata-only retrieval.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// ZeroVector returns a neutral query vector of dimension dim.
func ZeroVector(dim int) []float32 {
	if dim <= 0 {
		return nil
	}
	return make([]float32, dim)
}
