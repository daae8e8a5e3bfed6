package ml

import (
	"math"
	"sort"
)

// Softmax applies the softmax function to a slice of logits
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return []float32{}
	}

	maxLogit := float32(math.Inf(-1))
	for _, logit := range logits {
		if logit > maxLogit {
			maxLogit = logit
		}
	}

	var sumExp float32
	probs := make([]float32, len(logits))
	for i, logit := range logits {
		exp := float32(math.Exp(float64(logit - maxLogit)))
		probs[i] = exp
		sumExp += exp
	}

	for i := range probs {
		probs[i] /= sumExp
	}
	return probs
}

// Sigmoid applies the sigmoid function element-wise
func Sigmoid(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	for i, x := range logits {
		probs[i] = float32(1.0 / (1.0 + math.Exp(-float64(x))))
	}
	return probs
}

// TopK returns indices of the k largest elements in descending order.
// Equal values are ordered by ascending index.
func TopK(values []float32, k int) []int {
	if k > len(values) {
		k = len(values)
	}
	if k <= 0 {
		return []int{}
	}

	indices := make([]int, len(values))
	for i := range indices {
		indices[i] = i
	}

	sort.Slice(indices, func(a, b int) bool {
		va, vb := values[indices[a]], values[indices[b]]
		if va != vb {
			return va > vb
		}
		return indices[a] < indices[b]
	})
	return indices[:k]
}

// ArgMax returns the index of the largest element, or -1 for an empty slice
func ArgMax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	return TopK(values, 1)[0]
}
