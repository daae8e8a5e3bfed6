package postprocess

import (
	"fmt"

	"github.com/joeychilson/emojicoach/pkg/ml"
)

// ScoreFunction selects how raw logits are turned into scores
type ScoreFunction string

const (
	// ScoreSoftmax normalizes logits into a distribution summing to 1
	ScoreSoftmax ScoreFunction = "softmax"
	// ScoreSigmoid scores every class independently
	ScoreSigmoid ScoreFunction = "sigmoid"
	// ScoreNone passes logits through unchanged
	ScoreNone ScoreFunction = "none"
)

// ParseScoreFunction validates a score function name. An empty name selects softmax.
func ParseScoreFunction(name string) (ScoreFunction, error) {
	switch ScoreFunction(name) {
	case "", ScoreSoftmax:
		return ScoreSoftmax, nil
	case ScoreSigmoid:
		return ScoreSigmoid, nil
	case ScoreNone:
		return ScoreNone, nil
	}
	return "", fmt.Errorf("unknown score function %q", name)
}

// Apply converts logits into scores
func (f ScoreFunction) Apply(logits []float32) []float32 {
	switch f {
	case ScoreSigmoid:
		return ml.Sigmoid(logits)
	case ScoreNone:
		return append([]float32(nil), logits...)
	default:
		return ml.Softmax(logits)
	}
}

// Classification represents a single class prediction
type Classification struct {
	Label      string
	Class      int
	Confidence float32
}

// ClassificationOptions contains options for processing classification results
type ClassificationOptions struct {
	Labels        map[int]string // Label mapping
	TopK          int            // Number of top predictions to return (0 = all)
	ScoreFunction ScoreFunction  // How logits become scores (default softmax)
}

// ProcessClassification converts raw logits into classifications ordered by
// descending confidence, ties broken by ascending class index.
func ProcessClassification(logits []float32, opts ClassificationOptions) ([]Classification, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("empty logits")
	}

	probabilities := opts.ScoreFunction.Apply(logits)

	topK := opts.TopK
	if topK <= 0 {
		topK = len(probabilities)
	}
	indices := ml.TopK(probabilities, topK)

	classifications := make([]Classification, 0, len(indices))
	for _, idx := range indices {
		label, ok := opts.Labels[idx]
		if !ok {
			return nil, fmt.Errorf("no label for class %d", idx)
		}

		classifications = append(classifications, Classification{
			Label:      label,
			Class:      idx,
			Confidence: probabilities[idx],
		})
	}
	return classifications, nil
}
