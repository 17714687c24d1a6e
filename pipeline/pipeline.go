// Package pipeline loads legal texts into the document tables, embeds them
// and prices the embeddings.
//
// Each job walks the configured sources in order. The first failure is
// logged and returned, and the remaining sources are skipped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/youssefsiam38/legalpg/driver"
	"github.com/youssefsiam38/legalpg/embedding"
	"github.com/youssefsiam38/legalpg/internal/tokens"
	"github.com/youssefsiam38/legalpg/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultEmbedConcurrency is the number of embedding requests in flight.
const DefaultEmbedConcurrency = 4

// Source is one legal text and the tables it is stored in
type Source struct {
	Name string `yaml:"name"`
	// TableName holds the articles, CollectionName their embedded chunks.
	TableName      string `yaml:"table_name"`
	CollectionName string `yaml:"collection_name"`
	// Content is the PDF-extracted text, pages separated by form feeds.
	Content string `yaml:"content"`
	// Schema is the table of contents CSV.
	Schema string `yaml:"schema"`
	// KeyWord starts every article heading, e.g. "Article" or "Art.".
	KeyWord   string    `yaml:"key_word"`
	StartPage int       `yaml:"start_page"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Pipeline runs the document, embedding and pricing jobs
type Pipeline struct {
	documents   storage.DocumentStore
	embeddings  storage.EmbeddingStore
	embedder    embedding.Embedder
	counter     tokens.Counter
	sources     []Source
	chunkSize   int
	prices      []PriceConfig
	concurrency int
	logger      driver.Logger
}

// Config holds everything a Pipeline needs. Embedder is only required by
// UploadEmbeddings.
type Config struct {
	Documents   storage.DocumentStore
	Embeddings  storage.EmbeddingStore
	Embedder    embedding.Embedder
	Counter     tokens.Counter
	Sources     []Source
	ChunkSize   int
	Prices      []PriceConfig
	Concurrency int
	Logger      driver.Logger
}

// New creates a Pipeline. Zero ChunkSize, Concurrency and Counter fall back
// to DefaultChunkSize, DefaultEmbedConcurrency and tokens.ApproximateCounter.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Documents == nil {
		return nil, errors.New("document store is required")
	}
	p := &Pipeline{
		documents:   cfg.Documents,
		embeddings:  cfg.Embeddings,
		embedder:    cfg.Embedder,
		counter:     cfg.Counter,
		sources:     cfg.Sources,
		chunkSize:   cfg.ChunkSize,
		prices:      cfg.Prices,
		concurrency: cfg.Concurrency,
		logger:      driver.OrNop(cfg.Logger),
	}
	if p.counter == nil {
		p.counter = tokens.ApproximateCounter{}
	}
	if p.chunkSize == 0 {
		p.chunkSize = DefaultChunkSize
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultEmbedConcurrency
	}
	return p, nil
}

// UploadDocuments extracts the articles of every source and upserts them
// into the source's document table.
func (p *Pipeline) UploadDocuments(ctx context.Context) error {
	for _, src := range p.sources {
		start := time.Now()
		n, err := p.uploadDocuments(ctx, src)
		if err != nil {
			p.logger.Error("failed to upload documents", "source", src.Name, "error", err)
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		p.logger.Info("documents uploaded",
			"source", src.Name,
			"table", src.TableName,
			"articles", n,
			"duration", time.Since(start),
		)
	}
	return nil
}

func (p *Pipeline) uploadDocuments(ctx context.Context, src Source) (int, error) {
	text, err := LoadPages(src.Content, src.StartPage)
	if err != nil {
		return 0, err
	}
	toc, err := ReadTableOfContentsFile(src.Schema)
	if err != nil {
		return 0, err
	}
	docs, err := ExtractArticles(text, src.KeyWord, toc)
	if err != nil {
		return 0, err
	}

	if !src.UpdatedAt.IsZero() {
		for _, doc := range docs {
			updated := src.UpdatedAt
			doc.UpdatedTime = &updated
		}
	}
	if err := p.documents.UpsertDocuments(ctx, src.TableName, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// UploadEmbeddings chunks the stored documents of every source, embeds the
// chunks and replaces the source's stored embeddings with them.
func (p *Pipeline) UploadEmbeddings(ctx context.Context) error {
	if p.embedder == nil || p.embeddings == nil {
		return errors.New("embedder and embedding store are required")
	}
	for _, src := range p.sources {
		start := time.Now()
		n, err := p.uploadEmbeddings(ctx, src)
		if err != nil {
			p.logger.Error("failed to upload embeddings", "source", src.Name, "error", err)
			return fmt.Errorf("source %s: %w", src.Name, err)
		}
		p.logger.Info("embeddings uploaded",
			"source", src.Name,
			"collection", src.CollectionName,
			"chunks", n,
			"duration", time.Since(start),
		)
	}
	return nil
}

func (p *Pipeline) uploadEmbeddings(ctx context.Context, src Source) (int, error) {
	docs, err := p.collect(ctx, src.TableName)
	if err != nil {
		return 0, err
	}
	chunks, err := ChunkDocuments(ctx, docs, p.chunkSize, p.counter)
	if err != nil {
		return 0, err
	}
	if err := p.embed(ctx, chunks); err != nil {
		return 0, err
	}
	if err := p.embeddings.ReplaceEmbeddings(ctx, src.CollectionName, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// embed fills in the embedding of every chunk, a bounded number at a time.
func (p *Pipeline) embed(ctx context.Context, chunks []*storage.EmbeddedDocument) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			vec, err := p.embedder.Embed(ctx, chunk.Contents)
			if err != nil {
				return fmt.Errorf("failed to embed article %s: %w", chunk.Article, err)
			}
			chunk.Embedding = vec
			return nil
		})
	}
	return g.Wait()
}

// PriceEmbeddings prices embedding the stored documents of every source with
// every configured model.
func (p *Pipeline) PriceEmbeddings(ctx context.Context) ([]EmbeddingCost, error) {
	var result []EmbeddingCost
	for _, src := range p.sources {
		docs, err := p.collect(ctx, src.TableName)
		if err != nil {
			p.logger.Error("failed to price embeddings", "source", src.Name, "error", err)
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		costs, err := TotalEmbeddingCost(ctx, docs, p.counter, p.prices)
		if err != nil {
			p.logger.Error("failed to price embeddings", "source", src.Name, "error", err)
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		for i := range costs {
			costs[i].Name = src.Name
		}
		p.logger.Debug("embeddings priced", "source", src.Name, "documents", len(docs))
		result = append(result, costs...)
	}
	return result, nil
}

// collect drains ListDocuments so that the listing transaction ends before
// any slow work starts.
func (p *Pipeline) collect(ctx context.Context, table string) ([]*storage.Document, error) {
	var docs []*storage.Document
	for doc, err := range p.documents.ListDocuments(ctx, table) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
