// Package roberta runs RoBERTa-style sequence classification graphs exported to ONNX.
package roberta

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	inputIDsName      = "input_ids"
	attentionMaskName = "attention_mask"
	tokenTypeIDsName  = "token_type_ids"
	logitsName        = "logits"
)

// Model represents a sequence classification model
type Model struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	numLabels  int
}

// Input represents the input data for inference
type Input struct {
	InputIds      []int64
	AttentionMask []int64
}

// Output represents the output data from inference
type Output struct {
	// Logits are the raw per-class scores before softmax
	Logits []float32
}

// Info describes the graph's inputs and classification head
type Info struct {
	InputNames []string
	// NumLabels is the static size of the logits class dimension, or -1 if dynamic
	NumLabels int
}

// Inspect reads input and output metadata from an ONNX file without creating a session
func Inspect(modelPath string) (*Info, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}

	info := &Info{NumLabels: -1}
	for _, in := range inputs {
		info.InputNames = append(info.InputNames, in.Name)
	}

	for _, in := range []string{inputIDsName, attentionMaskName} {
		if !contains(info.InputNames, in) {
			return nil, fmt.Errorf("model has no %q input", in)
		}
	}

	found := false
	for _, out := range outputs {
		if out.Name != logitsName {
			continue
		}
		found = true
		if dims := out.Dimensions; len(dims) > 0 {
			info.NumLabels = int(dims[len(dims)-1])
		}
	}
	if !found {
		return nil, fmt.Errorf("model has no %q output", logitsName)
	}
	return info, nil
}

// New creates a new model instance. sessionOptions may be nil.
func New(modelPath string, sessionOptions *ort.SessionOptions) (*Model, error) {
	info, err := Inspect(modelPath)
	if err != nil {
		return nil, err
	}

	inputNames := []string{inputIDsName, attentionMaskName}
	if contains(info.InputNames, tokenTypeIDsName) {
		inputNames = append(inputNames, tokenTypeIDsName)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		[]string{logitsName},
		sessionOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Model{session: session, inputNames: inputNames, numLabels: info.NumLabels}, nil
}

// NumLabels returns the static class count of the logits output, or -1 if dynamic
func (m *Model) NumLabels() int {
	return m.numLabels
}

// Run performs inference on the input data
func (m *Model) Run(input *Input) (*Output, error) {
	if len(input.InputIds) == 0 || len(input.InputIds) != len(input.AttentionMask) {
		return nil, fmt.Errorf("invalid input: %d ids, %d mask values", len(input.InputIds), len(input.AttentionMask))
	}

	shape := ort.NewShape(1, int64(len(input.InputIds)))

	inputIdsTensor, err := ort.NewTensor(shape, input.InputIds)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIdsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(shape, input.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()

	inputs := []ort.Value{inputIdsTensor, attentionMaskTensor}
	if len(m.inputNames) == 3 {
		tokenTypeTensor, err := ort.NewTensor(shape, make([]int64, len(input.InputIds)))
		if err != nil {
			return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
		}
		defer tokenTypeTensor.Destroy()
		inputs = append(inputs, tokenTypeTensor)
	}

	outputs := make([]ort.Value, 1)
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected logits type %T", outputs[0])
	}

	// The tensor memory is released with the output value, so keep a copy.
	logits := append([]float32(nil), outputTensor.GetData()...)
	return &Output{Logits: logits}, nil
}

// Close releases resources
func (m *Model) Close() error {
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
