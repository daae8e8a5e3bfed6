// Package hub resolves model identifiers to local model directories, fetching
// files from the HuggingFace model hub when needed.
package hub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	hfhub "github.com/gomlx/go-huggingface/hub"
	"go.uber.org/zap"
)

// ErrModelNotFound is returned when a model cannot be resolved
var ErrModelNotFound = errors.New("model not found")

// onnxCandidates lists where exported graphs are commonly stored, in order of preference
var onnxCandidates = []string{"model.onnx", "onnx/model.onnx"}

// fetcher downloads a single repository file and returns its local path
type fetcher interface {
	DownloadFile(fileName string) (string, error)
}

// Resolver turns model identifiers into manifests
type Resolver struct {
	cacheDir string
	token    string
	revision string
	logger   *zap.Logger

	newFetcher func(repoID string) fetcher
}

// Option is a functional option for configuring Resolver
type Option func(*Resolver)

// WithCacheDir sets the download cache directory
func WithCacheDir(dir string) Option {
	return func(r *Resolver) {
		r.cacheDir = dir
	}
}

// WithToken sets the hub access token for private repositories
func WithToken(token string) Option {
	return func(r *Resolver) {
		r.token = token
	}
}

// WithRevision pins a branch, tag or commit
func WithRevision(revision string) Option {
	return func(r *Resolver) {
		r.revision = revision
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver backed by the HuggingFace hub
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.newFetcher = r.hubFetcher
	return r
}

func (r *Resolver) hubFetcher(repoID string) fetcher {
	repo := hfhub.New(repoID)
	if r.cacheDir != "" {
		repo = repo.WithCacheDir(r.cacheDir)
	}
	if r.token != "" {
		repo = repo.WithAuth(r.token)
	}
	if r.revision != "" {
		repo = repo.WithRevision(r.revision)
	}
	return repo
}

// Resolve returns the manifest for a local model directory or hub repository id
func (r *Resolver) Resolve(ctx context.Context, id string) (*Manifest, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrModelNotFound)
	}

	if info, err := os.Stat(id); err == nil && info.IsDir() {
		r.logger.Info("Using local model directory", zap.String("dir", id))
		return LoadManifest(id)
	}

	dir, err := r.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return LoadManifest(dir)
}

// fetch downloads the files a classifier needs and returns their directory
func (r *Resolver) fetch(ctx context.Context, repoID string) (string, error) {
	f := r.newFetcher(repoID)
	logger := r.logger.With(zap.String("repo", repoID))

	logger.Info("Fetching model from hub")

	configPath, err := f.DownloadFile("config.json")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrModelNotFound, repoID, err)
	}
	dir := filepath.Dir(configPath)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var modelFound bool
	for _, name := range onnxCandidates {
		if _, err := f.DownloadFile(name); err == nil {
			modelFound = true
			// Large exports keep their weights in a sibling data file.
			_, _ = f.DownloadFile(name + "_data")
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	if !modelFound {
		return "", fmt.Errorf("%w: %s has no ONNX export", ErrModelNotFound, repoID)
	}

	if _, err := f.DownloadFile("tokenizer.json"); err != nil {
		if _, vocabErr := f.DownloadFile("vocab.txt"); vocabErr != nil {
			return "", fmt.Errorf("failed to fetch tokenizer for %s: %w", repoID, err)
		}
	}

	for _, optional := range []string{"tokenizer_config.json", "special_tokens_map.json", adapterConfigFile} {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := f.DownloadFile(optional); err != nil {
			logger.Debug("Optional file not available", zap.String("file", optional), zap.Error(err))
		}
	}

	logger.Info("Model files ready", zap.String("dir", dir))
	return dir, nil
}
