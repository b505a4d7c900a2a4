package media

import "math"

// CosineSimilarity returns the cosine of the angle between two vectors,
// in [-1, 1]. Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// L2Normalize normalizes a vector in-place to unit length.
func L2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

// MeanVector returns the component-wise mean of the given vectors.
// Vectors with a different length than the first one are skipped.
func MeanVector(vectors [][]float32) []float32 {
	var mean []float32
	count := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if mean == nil {
			mean = make([]float32, len(v))
		}
		if len(v) != len(mean) {
			continue
		}
		for i, x := range v {
			mean[i] += x
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range mean {
		mean[i] /= float32(count)
	}
	return mean
}
