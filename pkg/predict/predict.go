package predict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/joeychilson/emojicoach/pkg/labels"
	"github.com/joeychilson/emojicoach/pkg/postprocess"
)

const (
	// MinK is the smallest number of emojis a prediction returns
	MinK = 1
	// MaxK is the largest number of emojis a prediction returns
	MaxK = 5
	// DefaultK is used when no count is given
	DefaultK = 3
)

// ErrInvalidK is returned when k is outside [MinK, MaxK]
var ErrInvalidK = errors.New("k out of range")

// Classifier scores text against every class
type Classifier interface {
	Classify(ctx context.Context, text string) ([]postprocess.Classification, error)
}

// Reaction is one ranked emoji for a text
type Reaction struct {
	Class int     `json:"class"`
	Label string  `json:"label"`
	Emoji string  `json:"emoji"`
	Score float32 `json:"score"`
}

// Handler turns classifier scores into emoji reactions
type Handler struct {
	classifier Classifier
	table      labels.Table
	logger     *zap.Logger
}

// NewHandler creates a handler. The classifier is shared and must be safe
// for concurrent use.
func NewHandler(classifier Classifier, table labels.Table, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		classifier: classifier,
		table:      table,
		logger:     logger,
	}
}

// Predict returns the k most likely emojis for text, joined by single spaces
func (h *Handler) Predict(ctx context.Context, text string, k int) (string, error) {
	reactions, err := h.Reactions(ctx, text, k)
	if err != nil {
		return "", err
	}
	return Join(reactions), nil
}

// Reactions returns the k most likely reactions for text. Scores are ranked
// descending; equal scores are ranked by ascending class index.
func (h *Handler) Reactions(ctx context.Context, text string, k int) ([]Reaction, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}

	scores, err := h.classifier.Classify(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to classify text: %w", err)
	}

	reactions := make([]Reaction, 0, len(scores))
	for _, s := range scores {
		class, glyph, err := h.table.Lookup(s.Label)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, Reaction{
			Class: class,
			Label: s.Label,
			Emoji: glyph,
			Score: s.Confidence,
		})
	}

	sort.Slice(reactions, func(i, j int) bool {
		if reactions[i].Score != reactions[j].Score {
			return reactions[i].Score > reactions[j].Score
		}
		return reactions[i].Class < reactions[j].Class
	})

	if k < len(reactions) {
		reactions = reactions[:k]
	}

	h.logger.Debug("Predicted reactions",
		zap.Int("textLen", len(text)),
		zap.Int("k", k),
		zap.String("emojis", Join(reactions)))
	return reactions, nil
}

// ValidateK checks that k is within [MinK, MaxK]
func ValidateK(k int) error {
	if k < MinK || k > MaxK {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidK, k, MinK, MaxK)
	}
	return nil
}

// Join returns the reactions' emojis separated by single spaces
func Join(reactions []Reaction) string {
	glyphs := make([]string, len(reactions))
	for i, r := range reactions {
		glyphs[i] = r.Emoji
	}
	return strings.Join(glyphs, " ")
}
