// Package rag answers questions about the stored legal texts with
// retrieval-augmented generation: the question is embedded, the nearest
// article chunks of every collection are retrieved, and Claude answers with
// those chunks in context.
package rag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/microcosm-cc/bluemonday"
	"github.com/youssefsiam38/legalpg/driver"
	"github.com/youssefsiam38/legalpg/embedding"
	"github.com/youssefsiam38/legalpg/storage"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// SystemPrompt sets the tone of every answer.
const SystemPrompt = "You are a friendly chatbot. " +
	"You can answer questions about The European Data Protection Regulation (GDPR) and EU Artificial Intelligence Act (AI Act). " +
	"You respond in a concise, technically credible tone."

const (
	// DefaultModel is the Claude model used when none is configured.
	DefaultModel = "claude-sonnet-4-5"
	// DefaultMaxTokens bounds the length of an answer.
	DefaultMaxTokens = 1000

	delimiter = "```"
)

// ErrEmptyAnswer is returned when the model answers without text.
var ErrEmptyAnswer = errors.New("empty answer")

// Answer is a generated answer and the chunks it was grounded on
type Answer struct {
	Text    string
	Sources []*storage.ScoredDocument
}

// Answerer answers questions
type Answerer struct {
	client      *anthropic.Client
	embedder    embedding.Embedder
	store       storage.EmbeddingStore
	collections []string
	model       string
	maxTokens   int64
	topK        int
	logger      driver.Logger
}

// Config configures an Answerer
type Config struct {
	Client   *anthropic.Client
	Embedder embedding.Embedder
	Store    storage.EmbeddingStore
	// Collections are the embedding tables searched for every question.
	Collections []string
	Model       string
	MaxTokens   int
	// TopK is the number of chunks taken from each collection.
	TopK   int
	Logger driver.Logger
}

// NewAnswerer creates an Answerer
func NewAnswerer(cfg Config) (*Answerer, error) {
	if cfg.Client == nil || cfg.Embedder == nil || cfg.Store == nil {
		return nil, errors.New("client, embedder and store are required")
	}
	if len(cfg.Collections) == 0 {
		return nil, errors.New("at least one collection is required")
	}
	a := &Answerer{
		client:      cfg.Client,
		embedder:    cfg.Embedder,
		store:       cfg.Store,
		collections: cfg.Collections,
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		topK:        cfg.TopK,
		logger:      driver.OrNop(cfg.Logger),
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = DefaultMaxTokens
	}
	if a.topK <= 0 {
		a.topK = storage.DefaultTopK
	}
	return a, nil
}

// Answer answers question.
func (a *Answerer) Answer(ctx context.Context, question string) (*Answer, error) {
	vec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	var sources []*storage.ScoredDocument
	for _, collection := range a.collections {
		docs, err := a.store.SimilarDocuments(ctx, collection, vec, storage.SimilarityQuery{TopK: a.topK})
		if err != nil {
			return nil, err
		}
		sources = append(sources, docs...)
	}
	a.logger.Debug("retrieved context", "chunks", len(sources))

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(delimiter+question+delimiter),
				anthropic.NewTextBlock(FormatContext(sources)),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyAnswer
	}

	a.logger.Info("question answered",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return &Answer{Text: text.String(), Sources: sources}, nil
}

// FormatContext renders retrieved chunks as the context block of a prompt.
func FormatContext(docs []*storage.ScoredDocument) string {
	var b strings.Builder
	b.WriteString("Relevant GDPR and AI Act articles: ")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n Article %s (%s): %s", d.Article, d.URL, d.Contents)
	}
	return b.String()
}

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// RenderHTML converts a Markdown answer to HTML that is safe to embed in a
// page.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}
