package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\[[^\[\]]+\]|\w+|[^\w\s]+`)

// SpecialTokens represents the special tokens used by the WordPiece tokenizer
type SpecialTokens struct {
	PAD string
	UNK string
	CLS string
	SEP string
}

// DefaultSpecialTokens returns the default special tokens for BERT
func DefaultSpecialTokens() SpecialTokens {
	return SpecialTokens{
		PAD: "[PAD]",
		UNK: "[UNK]",
		CLS: "[CLS]",
		SEP: "[SEP]",
	}
}

// WordPieceTokenizer tokenizes uncased text against a BERT vocab.txt
type WordPieceTokenizer struct {
	vocab         map[string]int
	specialTokens SpecialTokens
}

// NewWordPiece loads a vocab.txt with one token per line
func NewWordPiece(vocabPath string) (*WordPieceTokenizer, error) {
	file, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab file: %w", err)
	}
	defer file.Close()

	vocab := make(map[string]int)
	scanner := bufio.NewScanner(file)
	id := 0
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token != "" {
			vocab[token] = id
			id++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading vocab file: %w", err)
	}

	return NewWordPieceFromVocab(vocab, DefaultSpecialTokens())
}

// NewWordPieceFromVocab creates a tokenizer from an in-memory vocabulary
func NewWordPieceFromVocab(vocab map[string]int, specialTokens SpecialTokens) (*WordPieceTokenizer, error) {
	for _, token := range []string{specialTokens.CLS, specialTokens.SEP, specialTokens.PAD, specialTokens.UNK} {
		if _, ok := vocab[token]; !ok {
			return nil, fmt.Errorf("required token %s not found in vocab", token)
		}
	}
	return &WordPieceTokenizer{vocab: vocab, specialTokens: specialTokens}, nil
}

// Encode tokenizes text as [CLS] text [SEP]
func (t *WordPieceTokenizer) Encode(text string, opts EncodeOptions) (*TokenizerOutput, error) {
	unk := t.vocab[t.specialTokens.UNK]

	var ids []int
	for _, token := range wordPattern.FindAllString(text, -1) {
		token = strings.ToLower(token)
		for _, piece := range WordPiece(t.vocab, t.specialTokens, token) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, id)
			} else {
				ids = append(ids, unk)
			}
		}
	}

	return finalize(ids,
		t.vocab[t.specialTokens.CLS],
		t.vocab[t.specialTokens.SEP],
		opts,
	), nil
}

// VocabSize returns the size of the vocabulary
func (t *WordPieceTokenizer) VocabSize() int {
	return len(t.vocab)
}

// WordPiece splits a word into the longest matching vocabulary pieces
func WordPiece(vocab map[string]int, specialTokens SpecialTokens, word string) []string {
	if _, ok := vocab[word]; ok {
		return []string{word}
	}

	tokens := []string{}
	start := 0
	wordLen := len(word)
	for start < wordLen {
		var subword string

		end := wordLen
		found := false

		for end > start {
			substr := word[start:end]
			if start > 0 {
				substr = "##" + substr
			}

			if _, ok := vocab[substr]; ok {
				subword = substr
				found = true
				break
			}
			end--
		}

		if !found {
			return []string{specialTokens.UNK}
		}

		tokens = append(tokens, subword)
		start = end
	}
	return tokens
}
