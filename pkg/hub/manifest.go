package hub

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joeychilson/emojicoach/pkg/labels"
)

const (
	configFile        = "config.json"
	adapterConfigFile = "adapter_config.json"
)

// ModelConfig holds the fields of config.json used for classification
type ModelConfig struct {
	ModelType             string            `json:"model_type"`
	ID2Label              map[string]string `json:"id2label"`
	NumLabels             int               `json:"num_labels"`
	MaxPositionEmbeddings int               `json:"max_position_embeddings"`
	PadTokenID            int               `json:"pad_token_id"`
}

// AdapterConfig holds the fields of a PEFT adapter_config.json
type AdapterConfig struct {
	BaseModel string `json:"base_model_name_or_path"`
	PeftType  string `json:"peft_type"`
	TaskType  string `json:"task_type"`
	Rank      int    `json:"r"`
	Alpha     int    `json:"lora_alpha"`
}

// Manifest describes a resolved model directory
type Manifest struct {
	Dir       string
	ModelPath string
	Config    ModelConfig
	Adapter   *AdapterConfig
}

// LoadManifest reads config.json, locates the ONNX graph and reads the
// adapter config if one is present
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{Dir: dir}

	if err := readJSON(filepath.Join(dir, configFile), &m.Config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelNotFound, err)
	}

	for _, name := range onnxCandidates {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if _, err := os.Stat(path); err == nil {
			m.ModelPath = path
			break
		}
	}
	if m.ModelPath == "" {
		return nil, fmt.Errorf("%w: no ONNX graph in %s", ErrModelNotFound, dir)
	}

	adapterPath := filepath.Join(dir, adapterConfigFile)
	if _, err := os.Stat(adapterPath); err == nil {
		var adapter AdapterConfig
		if err := readJSON(adapterPath, &adapter); err != nil {
			return nil, err
		}
		m.Adapter = &adapter
	}
	return m, nil
}

// NumClasses returns num_labels, falling back to the size of id2label
func (m *Manifest) NumClasses() int {
	if m.Config.NumLabels > 0 {
		return m.Config.NumLabels
	}
	return len(m.Config.ID2Label)
}

// Labels returns the class index to label name mapping. Classes missing
// from id2label get the generic LABEL_n name.
func (m *Manifest) Labels() (map[int]string, error) {
	n := m.NumClasses()
	out := make(map[int]string, n)
	for key, name := range m.Config.ID2Label {
		class, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid id2label key %q", key)
		}
		out[class] = name
	}
	for class := 0; class < n; class++ {
		if _, ok := out[class]; !ok {
			out[class] = labels.ClassLabel(class)
		}
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
