package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joeychilson/emojicoach/models/roberta"
	"github.com/joeychilson/emojicoach/pkg/hub"
	"github.com/joeychilson/emojicoach/pkg/labels"
	"github.com/joeychilson/emojicoach/pkg/onnx"
	"github.com/joeychilson/emojicoach/pkg/postprocess"
	"github.com/joeychilson/emojicoach/pkg/tokenizer"
)

// DefaultBaseModel is the pretrained model the emoji adapter was trained on
const DefaultBaseModel = "FacebookAI/roberta-base"

// DefaultMaxLength is the longest token sequence fed to the model
const DefaultMaxLength = 512

// Config holds configuration for loading a Classifier
type Config struct {
	// Model is a local directory or hub repository id
	Model string
	// BaseModel is the pretrained model the adapter must target
	BaseModel string

	CacheDir string
	Token    string
	Revision string

	GPU         onnx.GPUMode
	LibraryPath string
	Threads     int

	// MaxLength caps the token sequence length (0 = DefaultMaxLength)
	MaxLength int
	// ScoreFunction turns logits into scores (default softmax)
	ScoreFunction postprocess.ScoreFunction
	// Table is the emoji table the model's classes must match
	Table labels.Table

	Logger *zap.Logger
}

// session runs the classification graph on encoded text
type session interface {
	Run(input *roberta.Input) (*roberta.Output, error)
	Close() error
}

// Classifier is a loaded text classifier. It is safe for concurrent use.
type Classifier struct {
	runtime       *onnx.Runtime
	model         session
	tokenizer     tokenizer.Tokenizer
	labels        map[int]string
	numClasses    int
	maxLength     int
	scoreFunction postprocess.ScoreFunction
	logger        *zap.Logger
}

// Load resolves the model, validates it against the adapter and emoji table,
// and creates an inference session on the device picked by the runtime.
// Nothing is left open when it fails.
func Load(ctx context.Context, cfg Config) (c *Classifier, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseModel == "" {
		cfg.BaseModel = DefaultBaseModel
	}
	if cfg.Table.Len() == 0 {
		cfg.Table = labels.TweetEval()
	}

	scoreFunction, err := postprocess.ParseScoreFunction(string(cfg.ScoreFunction))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger.Info("Loading classifier", zap.String("model", cfg.Model), zap.String("baseModel", cfg.BaseModel))

	resolver := hub.NewResolver(
		hub.WithCacheDir(cfg.CacheDir),
		hub.WithToken(cfg.Token),
		hub.WithRevision(cfg.Revision),
		hub.WithLogger(logger.Named("hub")),
	)
	manifest, err := resolver.Resolve(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model: %w", err)
	}

	if err := ValidateAdapter(manifest.Adapter, cfg.BaseModel); err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(manifest.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	runtime, err := onnx.New(ctx,
		onnx.WithGPU(cfg.GPU),
		onnx.WithCachePath(cfg.CacheDir),
		onnx.WithLibraryPath(cfg.LibraryPath),
		onnx.WithThreads(cfg.Threads),
		onnx.WithLogger(logger.Named("onnx")),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = runtime.Close()
		}
	}()

	sessionOptions, err := runtime.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer sessionOptions.Destroy()

	model, err := roberta.New(manifest.ModelPath, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	defer func() {
		if err != nil {
			_ = model.Close()
		}
	}()

	numClasses, err := ValidateDimensions(manifest, model.NumLabels(), cfg.Table)
	if err != nil {
		return nil, err
	}

	classLabels, err := manifest.Labels()
	if err != nil {
		return nil, err
	}

	c = &Classifier{
		runtime:       runtime,
		model:         model,
		tokenizer:     tok,
		labels:        classLabels,
		numClasses:    numClasses,
		maxLength:     maxLength(cfg.MaxLength, manifest),
		scoreFunction: scoreFunction,
		logger:        logger,
	}

	logger.Info("Classifier ready",
		zap.String("dir", manifest.Dir),
		zap.String("device", string(runtime.Device())),
		zap.Int("classes", numClasses),
		zap.Int("vocabSize", tok.VocabSize()),
		zap.Int("maxLength", c.maxLength),
		zap.Duration("took", time.Since(start)))
	return c, nil
}

// Classify scores text against every class. Results are ordered by
// descending score, ties by ascending class index.
func (c *Classifier) Classify(ctx context.Context, text string) ([]postprocess.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded, err := c.tokenizer.Encode(text, tokenizer.EncodeOptions{MaxLength: c.maxLength})
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize: %w", err)
	}

	output, err := c.model.Run(&roberta.Input{
		InputIds:      encoded.InputIds,
		AttentionMask: encoded.AttentionMask,
	})
	if err != nil {
		return nil, err
	}

	if len(output.Logits) != c.numClasses {
		return nil, fmt.Errorf("%w: got %d logits, expected %d", ErrDimensionMismatch, len(output.Logits), c.numClasses)
	}

	c.logger.Debug("Classified text",
		zap.Int("tokens", len(encoded.InputIds)))

	return postprocess.ProcessClassification(output.Logits, postprocess.ClassificationOptions{
		Labels:        c.labels,
		ScoreFunction: c.scoreFunction,
	})
}

// NumClasses returns the number of output classes
func (c *Classifier) NumClasses() int {
	return c.numClasses
}

// Device returns the device inference runs on
func (c *Classifier) Device() onnx.Device {
	return c.runtime.Device()
}

// RuntimeVersion returns the ONNX Runtime version backing the session
func (c *Classifier) RuntimeVersion() string {
	return c.runtime.Version()
}

// Close releases the session and the runtime environment
func (c *Classifier) Close() error {
	return errors.Join(c.model.Close(), c.runtime.Close())
}

func maxLength(configured int, m *hub.Manifest) int {
	n := configured
	if n <= 0 {
		n = DefaultMaxLength
	}
	limit := m.Config.MaxPositionEmbeddings
	// RoBERTa reserves two position slots for the padding offset.
	if strings.Contains(m.Config.ModelType, "roberta") {
		limit -= 2
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}
