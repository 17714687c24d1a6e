// Package tokens counts the tokens of article text for chunking and pricing.
package tokens

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
)

// Counter counts the tokens of a text
type Counter interface {
	Count(ctx context.Context, text string) (int, error)
}

// Approximate estimates the token count from the character count, at about
// four characters per token with a minimum of one token for non-empty text.
func Approximate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return max((len(text)+3)/4, 1)
}

// ApproximateCounter is a Counter that never calls out.
type ApproximateCounter struct{}

// Count implements Counter
func (ApproximateCounter) Count(_ context.Context, text string) (int, error) {
	return Approximate(text), nil
}

// AnthropicCounter counts tokens with the Claude token counting API, caching
// results by content hash. After the first API failure it falls back to
// Approximate for the rest of its lifetime.
type AnthropicCounter struct {
	client *anthropic.Client
	model  string

	mu       sync.Mutex
	cache    map[string]int
	fallback bool
}

// NewAnthropicCounter creates a counter for model. A nil client always
// approximates.
func NewAnthropicCounter(client *anthropic.Client, model string) *AnthropicCounter {
	return &AnthropicCounter{
		client: client,
		model:  model,
		cache:  make(map[string]int),
	}
}

// Count implements Counter
func (c *AnthropicCounter) Count(ctx context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	key := c.cacheKey(text)
	c.mu.Lock()
	count, ok := c.cache[key]
	useAPI := c.client != nil && !c.fallback
	c.mu.Unlock()
	if ok {
		return count, nil
	}
	if !useAPI {
		return Approximate(text), nil
	}

	resp, err := c.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		c.mu.Lock()
		c.fallback = true
		c.mu.Unlock()
		return Approximate(text), nil
	}

	count = int(resp.InputTokens)
	c.mu.Lock()
	c.cache[key] = count
	c.mu.Unlock()
	return count, nil
}

// UsingFallback reports whether the API failed and counts are approximated.
func (c *AnthropicCounter) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

// cacheKey generates cache key for content
func (c *AnthropicCounter) cacheKey(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s:%x", c.model, hash[:8])
}

// Compile-time checks
var (
	_ Counter = ApproximateCounter{}
	_ Counter = (*AnthropicCounter)(nil)
)
