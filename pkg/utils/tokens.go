// Package utils holds small helpers shared across sitewise packages.
package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts and truncates text with a model's BPE encoding.
// A nil counter falls back to a four-characters-per-token estimate.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter returns a counter for model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()
	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return EstimateTokens(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// Truncate cuts text down to at most maxTokens tokens. The second return
// value reports whether anything was removed.
func (tc *TokenCounter) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}

	if tc == nil || tc.encoding == nil {
		limit := maxTokens * 4
		runes := []rune(text)
		if len(runes) <= limit {
			return text, false
		}
		return string(runes[:limit]), true
	}

	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	// Decoding a cut BPE sequence can leave a partial UTF-8 rune at the end.
	out := tc.encoding.Decode(tokens[:maxTokens])
	return strings.ToValidUTF8(out, ""), true
}

// Model returns the model name this counter was built for.
func (tc *TokenCounter) Model() string {
	if tc == nil {
		return ""
	}
	return tc.model
}

// EstimateTokens is the rough four-characters-per-token estimate.
func EstimateTokens(text string) int {
	return len(text) / 4
}
