package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genericLabels(n int) map[int]string {
	m := make(map[int]string, n)
	for i := 0; i < n; i++ {
		m[i] = "LABEL_" + string(rune('a'+i))
	}
	return m
}

func TestProcessClassificationAllClasses(t *testing.T) {
	logits := []float32{0.5, 2.0, -1.0, 1.0}
	got, err := ProcessClassification(logits, ClassificationOptions{Labels: genericLabels(4)})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, []int{1, 3, 0, 2}, []int{got[0].Class, got[1].Class, got[2].Class, got[3].Class})

	var sum float32
	for _, c := range got {
		sum += c.Confidence
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, "LABEL_b", got[0].Label)
}

func TestProcessClassificationTopK(t *testing.T) {
	logits := []float32{0.1, 0.6, 0.3}
	got, err := ProcessClassification(logits, ClassificationOptions{
		Labels:        genericLabels(3),
		TopK:          2,
		ScoreFunction: ScoreNone,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int{1, 2}, []int{got[0].Class, got[1].Class})
	assert.InDelta(t, 0.6, got[0].Confidence, 1e-6)
}

func TestProcessClassificationRawLogitsKeepEveryClass(t *testing.T) {
	logits := []float32{2.0, -0.5, -1.0, -3.0}
	got, err := ProcessClassification(logits, ClassificationOptions{
		Labels:        genericLabels(4),
		ScoreFunction: ScoreNone,
	})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, []int{got[0].Class, got[1].Class, got[2].Class, got[3].Class})
	assert.Equal(t, float32(-3.0), got[3].Confidence)
}

func TestProcessClassificationMissingLabel(t *testing.T) {
	_, err := ProcessClassification([]float32{1, 2}, ClassificationOptions{Labels: genericLabels(1)})
	assert.Error(t, err)
}

func TestProcessClassificationEmpty(t *testing.T) {
	_, err := ProcessClassification(nil, ClassificationOptions{})
	assert.Error(t, err)
}

func TestParseScoreFunction(t *testing.T) {
	for name, want := range map[string]ScoreFunction{
		"":        ScoreSoftmax,
		"softmax": ScoreSoftmax,
		"sigmoid": ScoreSigmoid,
		"none":    ScoreNone,
	} {
		got, err := ParseScoreFunction(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseScoreFunction("tanh")
	assert.Error(t, err)
}

func TestScoreNoneCopies(t *testing.T) {
	logits := []float32{1, 2}
	scores := ScoreNone.Apply(logits)
	scores[0] = 5
	assert.Equal(t, float32(1), logits[0])
}
