// Package tokencount provides token counting for LLM API calls.
//
// It uses tiktoken-go, a Go port of OpenAI's official tiktoken library,
// to size prompts before sending them so completion budgets stay within
// the model's context window.
package tokencount

import (
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// DefaultCounter is a global token counter instance.
var DefaultCounter = NewCounter()

// getEncodingForModel returns the tiktoken encoding for a model,
// caching encodings for reuse.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	c.mu.RLock()
	if enc, ok := c.encodingCache[model]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// cl100k_base covers GPT-4/4o and most modern chat models.
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[model] = enc
	return enc, nil
}

// CountTokens returns the number of tokens text encodes to for model.
// A rough character-based estimate is returned when no encoding can
// be loaded, so callers never fail on counting alone.
func (c *Counter) CountTokens(text, model string) int {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// CompletionBudget returns a max_tokens value for a completion given
// the prompt size, the model context window and a desired ceiling.
func (c *Counter) CompletionBudget(promptTokens, contextWindow, ceiling int) int {
	remaining := contextWindow - promptTokens - 64
	if remaining <= 0 {
		return 256
	}
	if remaining > ceiling {
		return ceiling
	}
	return remaining
}
