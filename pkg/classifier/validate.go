package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joeychilson/emojicoach/pkg/hub"
	"github.com/joeychilson/emojicoach/pkg/labels"
)

var (
	// ErrDimensionMismatch is returned when the model, its config and the
	// emoji table disagree on the number of classes
	ErrDimensionMismatch = errors.New("class dimension mismatch")

	// ErrIncompatibleAdapter is returned when the adapter targets another base model or task
	ErrIncompatibleAdapter = errors.New("incompatible adapter")
)

// ValidateAdapter checks that an adapter was trained for sequence
// classification on baseModel. A nil adapter means the weights are already
// fully merged and is accepted.
func ValidateAdapter(adapter *hub.AdapterConfig, baseModel string) error {
	if adapter == nil {
		return nil
	}
	if adapter.BaseModel != "" && !sameModel(adapter.BaseModel, baseModel) {
		return fmt.Errorf("%w: adapter targets %q, base model is %q", ErrIncompatibleAdapter, adapter.BaseModel, baseModel)
	}
	if adapter.TaskType != "" && adapter.TaskType != "SEQ_CLS" {
		return fmt.Errorf("%w: adapter task type is %q, expected SEQ_CLS", ErrIncompatibleAdapter, adapter.TaskType)
	}
	return nil
}

// ValidateDimensions checks that the config's class count, the graph's
// logits dimension (graphLabels, -1 if dynamic) and the emoji table agree,
// and returns the class count
func ValidateDimensions(m *hub.Manifest, graphLabels int, table labels.Table) (int, error) {
	numClasses := m.NumClasses()
	if numClasses == 0 {
		if graphLabels <= 0 {
			return 0, fmt.Errorf("%w: model declares no classes", ErrDimensionMismatch)
		}
		numClasses = graphLabels
	}

	if graphLabels > 0 && graphLabels != numClasses {
		return 0, fmt.Errorf("%w: graph outputs %d classes, config declares %d", ErrDimensionMismatch, graphLabels, numClasses)
	}

	if err := table.Validate(numClasses); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	return numClasses, nil
}

// sameModel compares hub ids, treating a bare name as matching any
// organisation ("roberta-base" matches "FacebookAI/roberta-base")
func sameModel(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSuffix(a, "/")), strings.ToLower(strings.TrimSuffix(b, "/"))
	if a == b {
		return true
	}
	if strings.Contains(a, "/") && strings.Contains(b, "/") {
		return false
	}
	return repoName(a) == repoName(b)
}

func repoName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
