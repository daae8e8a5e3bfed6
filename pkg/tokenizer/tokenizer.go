package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
)

// Tokenizer encodes text into model inputs
type Tokenizer interface {
	// Encode tokenizes text, wrapping it in the model's sequence markers.
	Encode(text string, opts EncodeOptions) (*TokenizerOutput, error)
	// VocabSize returns the size of the vocabulary
	VocabSize() int
}

// EncodeOptions controls truncation
type EncodeOptions struct {
	MaxLength int // Maximum sequence length including markers (0 = unlimited)
}

// TokenizerOutput represents the output of the tokenizer
type TokenizerOutput struct {
	InputIds      []int64
	AttentionMask []int64
}

// Load loads the tokenizer found in a model directory. tokenizer.json is
// preferred; a WordPiece vocab.txt is used as a fallback.
func Load(modelDir string) (Tokenizer, error) {
	tokenizerJSONPath := filepath.Join(modelDir, "tokenizer.json")
	if _, err := os.Stat(tokenizerJSONPath); err == nil {
		return NewHF(modelDir)
	}

	vocabPath := filepath.Join(modelDir, "vocab.txt")
	if _, err := os.Stat(vocabPath); err == nil {
		return NewWordPiece(vocabPath)
	}

	return nil, fmt.Errorf("no tokenizer found in %s (expected tokenizer.json or vocab.txt)", modelDir)
}

// finalize wraps ids in sequence markers and truncates them, keeping the end marker
func finalize(ids []int, bos, eos int, opts EncodeOptions) *TokenizerOutput {
	inputIds := make([]int64, 0, len(ids)+2)
	inputIds = append(inputIds, int64(bos))
	for _, id := range ids {
		inputIds = append(inputIds, int64(id))
	}
	inputIds = append(inputIds, int64(eos))

	if opts.MaxLength > 1 && len(inputIds) > opts.MaxLength {
		inputIds = inputIds[:opts.MaxLength]
		inputIds[opts.MaxLength-1] = int64(eos)
	}

	attentionMask := make([]int64, len(inputIds))
	for i := range attentionMask {
		attentionMask[i] = 1
	}

	return &TokenizerOutput{
		InputIds:      inputIds,
		AttentionMask: attentionMask,
	}
}
