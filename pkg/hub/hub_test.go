package hub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testConfig = `{
  "model_type": "roberta",
  "num_labels": 3,
  "id2label": {"0": "LABEL_0", "1": "LABEL_1", "2": "LABEL_2"},
  "max_position_embeddings": 514
}`

const testAdapter = `{
  "base_model_name_or_path": "FacebookAI/roberta-base",
  "peft_type": "LORA",
  "task_type": "SEQ_CLS",
  "r": 8,
  "lora_alpha": 16
}`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// fakeRepo serves files from a map into a snapshot directory
type fakeRepo struct {
	dir       string
	files     map[string]string
	requested []string
}

func (f *fakeRepo) DownloadFile(name string) (string, error) {
	f.requested = append(f.requested, name)
	content, ok := f.files[name]
	if !ok {
		return "", fmt.Errorf("404: %s", name)
	}
	path := filepath.Join(f.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(content), 0o644)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"config.json":         testConfig,
		"onnx/model.onnx":     "graph",
		"adapter_config.json": testAdapter,
	})

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "onnx", "model.onnx"), m.ModelPath)
	assert.Equal(t, 3, m.NumClasses())
	assert.Equal(t, 514, m.Config.MaxPositionEmbeddings)
	require.NotNil(t, m.Adapter)
	assert.Equal(t, "FacebookAI/roberta-base", m.Adapter.BaseModel)
	assert.Equal(t, "SEQ_CLS", m.Adapter.TaskType)
	assert.Equal(t, 8, m.Adapter.Rank)

	byClass, err := m.Labels()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "LABEL_0", 1: "LABEL_1", 2: "LABEL_2"}, byClass)
}

func TestLoadManifestPrefersRootGraph(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"config.json":     testConfig,
		"model.onnx":      "graph",
		"onnx/model.onnx": "graph",
	})

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model.onnx"), m.ModelPath)
	assert.Nil(t, m.Adapter)
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadManifest(dir)
	assert.ErrorIs(t, err, ErrModelNotFound)

	writeFiles(t, dir, map[string]string{"config.json": testConfig})
	_, err = LoadManifest(dir)
	assert.ErrorIs(t, err, ErrModelNotFound)

	writeFiles(t, dir, map[string]string{"model.onnx": "graph", "adapter_config.json": "{"})
	_, err = LoadManifest(dir)
	assert.Error(t, err)
}

func TestLabelsFillsMissingClasses(t *testing.T) {
	m := &Manifest{Config: ModelConfig{NumLabels: 3, ID2Label: map[string]string{"1": "joy"}}}
	got, err := m.Labels()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "LABEL_0", 1: "joy", 2: "LABEL_2"}, got)

	m = &Manifest{Config: ModelConfig{ID2Label: map[string]string{"x": "bad"}}}
	_, err = m.Labels()
	assert.Error(t, err)
}

func TestResolveLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"config.json": testConfig, "model.onnx": "graph"})

	r := NewResolver(WithLogger(zaptest.NewLogger(t)))
	m, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, m.Dir)
}

func TestResolveFromHub(t *testing.T) {
	repo := &fakeRepo{
		dir: t.TempDir(),
		files: map[string]string{
			"config.json":         testConfig,
			"onnx/model.onnx":     "graph",
			"tokenizer.json":      "{}",
			"adapter_config.json": testAdapter,
		},
	}

	r := NewResolver(WithLogger(zaptest.NewLogger(t)))
	r.newFetcher = func(repoID string) fetcher {
		assert.Equal(t, "user/roberta-tweet-emoji", repoID)
		return repo
	}

	m, err := r.Resolve(context.Background(), "user/roberta-tweet-emoji")
	require.NoError(t, err)
	assert.Equal(t, repo.dir, m.Dir)
	assert.Equal(t, filepath.Join(repo.dir, "onnx", "model.onnx"), m.ModelPath)
	require.NotNil(t, m.Adapter)
	assert.Contains(t, repo.requested, "onnx/model.onnx_data")
	assert.NotContains(t, repo.requested, "vocab.txt")
}

func TestResolveFromHubErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"missing config", map[string]string{"model.onnx": "g", "tokenizer.json": "{}"}},
		{"missing graph", map[string]string{"config.json": testConfig, "tokenizer.json": "{}"}},
		{"missing tokenizer", map[string]string{"config.json": testConfig, "model.onnx": "g"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{dir: t.TempDir(), files: tt.files}
			r := NewResolver()
			r.newFetcher = func(string) fetcher { return repo }

			_, err := r.Resolve(context.Background(), "user/model")
			assert.Error(t, err)
		})
	}
}

func TestResolveEmptyID(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestResolveCancelled(t *testing.T) {
	repo := &fakeRepo{dir: t.TempDir(), files: map[string]string{"config.json": testConfig}}
	r := NewResolver()
	r.newFetcher = func(string) fetcher { return repo }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, "user/model")
	assert.ErrorIs(t, err, context.Canceled)
}
