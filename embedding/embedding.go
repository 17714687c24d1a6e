// Package embedding turns text into vectors with an OpenAI-compatible
// embeddings endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com"

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// ErrEmbeddingFailed is returned when the endpoint rejects a request or
// answers without an embedding.
var ErrEmbeddingFailed = errors.New("embedding request failed")

// Embedder computes the embedding of a text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls POST {BaseURL}/v1/embeddings.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Option configures an OpenAIEmbedder
type Option func(*OpenAIEmbedder)

// WithBaseURL points the embedder at another OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(e *OpenAIEmbedder) {
		e.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(e *OpenAIEmbedder) {
		e.model = model
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *OpenAIEmbedder) {
		e.httpClient = c
	}
}

// NewOpenAIEmbedder creates an embedder authenticating with apiKey.
func NewOpenAIEmbedder(apiKey string, opts ...Option) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed implements Embedder. Newlines are replaced by spaces before the text
// is sent.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"input": []string{strings.ReplaceAll(text, "\n", " ")},
		"model": e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, msg)
	}

	values := gjson.GetBytes(raw, "data.0.embedding")
	if !values.IsArray() {
		return nil, fmt.Errorf("%w: response has no embedding", ErrEmbeddingFailed)
	}
	arr := values.Array()
	vec := make([]float32, len(arr))
	for i, v := range arr {
		vec[i] = float32(v.Float())
	}
	return vec, nil
}

// Compile-time check
var _ Embedder = (*OpenAIEmbedder)(nil)
