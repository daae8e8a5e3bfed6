package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/go-huggingface/tokenizers/api"
	"github.com/gomlx/go-huggingface/tokenizers/hftokenizer"
)

// RoBERTa special token ids, used when the tokenizer does not register them
const (
	robertaBOS = 0
	robertaEOS = 2
)

// HFTokenizer wraps a HuggingFace tokenizer.json (BPE, WordPiece, Unigram)
type HFTokenizer struct {
	tok       api.Tokenizer
	vocabSize int
	bos       int
	eos       int
}

// NewHF loads tokenizer.json and tokenizer_config.json from a model directory
func NewHF(modelDir string) (*HFTokenizer, error) {
	var config *api.Config
	configPath := filepath.Join(modelDir, "tokenizer_config.json")
	if _, err := os.Stat(configPath); err == nil {
		content, err := normalizeConfig(configPath)
		if err != nil {
			return nil, err
		}
		config, err = api.ParseConfigContent(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tokenizer config: %w", err)
		}
		config.ConfigFile = configPath
	}

	tokenizerPath := filepath.Join(modelDir, "tokenizer.json")
	tok, err := hftokenizer.NewFromFile(config, tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer.json: %w", err)
	}

	vocabSize, err := countVocab(tokenizerPath)
	if err != nil {
		return nil, err
	}
	return newHFTokenizer(tok, vocabSize), nil
}

func newHFTokenizer(tok api.Tokenizer, vocabSize int) *HFTokenizer {
	return &HFTokenizer{
		tok:       tok,
		vocabSize: vocabSize,
		bos:       specialTokenID(tok, robertaBOS, api.TokBeginningOfSentence, api.TokClassification),
		eos:       specialTokenID(tok, robertaEOS, api.TokEndOfSentence),
	}
}

// Encode tokenizes text as <s> text </s>
func (t *HFTokenizer) Encode(text string, opts EncodeOptions) (*TokenizerOutput, error) {
	ids := t.tok.Encode(text)

	// Some tokenizer.json files carry a post-processor that already adds the markers.
	if len(ids) >= 2 && ids[0] == t.bos && ids[len(ids)-1] == t.eos {
		ids = ids[1 : len(ids)-1]
	}
	return finalize(ids, t.bos, t.eos, opts), nil
}

// VocabSize returns the size of the vocabulary
func (t *HFTokenizer) VocabSize() int {
	return t.vocabSize
}

func specialTokenID(tok api.Tokenizer, fallback int, candidates ...api.SpecialToken) int {
	for _, c := range candidates {
		if id, err := tok.SpecialTokenID(c); err == nil && id >= 0 {
			return id
		}
	}
	return fallback
}

// specialTokenFields may hold AddedToken objects instead of plain strings
var specialTokenFields = []string{
	"bos_token", "eos_token", "pad_token", "unk_token",
	"cls_token", "sep_token", "mask_token",
}

// normalizeConfig rewrites AddedToken objects ({"content": "<s>", ...}) in
// tokenizer_config.json to their plain token strings
func normalizeConfig(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer config: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer config: %w", err)
	}

	for _, field := range specialTokenFields {
		switch v := raw[field].(type) {
		case map[string]any:
			content, _ := v["content"].(string)
			raw[field] = content
		case nil:
			delete(raw, field)
		}
	}
	return json.Marshal(raw)
}

// countVocab returns the number of distinct ids declared in tokenizer.json
func countVocab(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read tokenizer.json: %w", err)
	}

	var config struct {
		Model struct {
			Vocab json.RawMessage `json:"vocab"`
		} `json:"model"`
		AddedTokens []struct {
			ID int `json:"id"`
		} `json:"added_tokens"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return 0, fmt.Errorf("failed to parse tokenizer.json: %w", err)
	}

	ids := make(map[int]struct{})

	// BPE and WordPiece store a token->id map, Unigram a list of [token, score] pairs.
	var vocabMap map[string]int
	if err := json.Unmarshal(config.Model.Vocab, &vocabMap); err == nil {
		for _, id := range vocabMap {
			ids[id] = struct{}{}
		}
	} else {
		var vocabList []json.RawMessage
		if err := json.Unmarshal(config.Model.Vocab, &vocabList); err != nil {
			return 0, fmt.Errorf("unsupported vocab format in tokenizer.json")
		}
		for i := range vocabList {
			ids[i] = struct{}{}
		}
	}

	for _, added := range config.AddedTokens {
		ids[added.ID] = struct{}{}
	}
	return len(ids), nil
}
