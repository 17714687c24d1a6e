package legalpg

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/youssefsiam38/legalpg/config"
	"github.com/youssefsiam38/legalpg/driver"
	"github.com/youssefsiam38/legalpg/driver/databasesql"
	"github.com/youssefsiam38/legalpg/driver/pgxv5"
	"github.com/youssefsiam38/legalpg/embedding"
	"github.com/youssefsiam38/legalpg/internal/tokens"
	"github.com/youssefsiam38/legalpg/pipeline"
	"github.com/youssefsiam38/legalpg/rag"
	"github.com/youssefsiam38/legalpg/sqlengine"
	"github.com/youssefsiam38/legalpg/storage"
)

// Version is the current legalpg version
const Version = "1.0.0"

// Client owns the connection pool, the engine and the stores built on it.
// Create one per process and Close it at shutdown.
type Client struct {
	cfg       *config.Config
	engine    *sqlengine.Engine
	store     *storage.PostgresStore
	anthropic *anthropic.Client
	logger    driver.Logger

	closed atomic.Bool
}

// NewClient opens the configured pool and builds the engine and stores.
func NewClient(ctx context.Context, cfg *config.Config, logger driver.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = driver.OrNop(logger)

	pool, err := openPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	source := sqlengine.NewPoolDataSource(pool,
		sqlengine.WithAcquireTimeout(cfg.Database.AcquireTimeout),
		sqlengine.WithDataSourceLogger(logger),
	)
	engine, err := sqlengine.New(source,
		sqlengine.WithPageSize(cfg.Database.PageSize),
		sqlengine.WithLogger(logger),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		engine: engine,
		store:  storage.NewPostgresStore(engine),
		logger: logger,
	}
	if cfg.Answer.APIKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(cfg.Answer.APIKey))
		c.anthropic = &client
	}

	logger.Info("client opened",
		"version", Version,
		"driver", cfg.Database.Driver,
		"max_conns", cfg.Database.MaxConns,
		"sources", len(cfg.Sources),
	)
	return c, nil
}

func openPool(ctx context.Context, db config.Database, logger driver.Logger) (driver.Pool, error) {
	switch db.Driver {
	case config.DriverPgx:
		pool, err := pgxv5.Open(ctx, db.ConnString(), int32(db.MinConns), int32(db.MaxConns), logger)
		if err != nil {
			return nil, err
		}
		return pool, nil
	case config.DriverPostgres:
		pool, err := databasesql.Open(ctx, db.ConnString(), db.MinConns, db.MaxConns, logger)
		if err != nil {
			return nil, err
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, db.Driver)
	}
}

// Config returns the client configuration
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Engine returns the transactional SQL engine
func (c *Client) Engine() *sqlengine.Engine {
	return c.engine
}

// Store returns the PostgreSQL document and embedding store
func (c *Client) Store() *storage.PostgresStore {
	return c.store
}

// AnthropicClient returns the Anthropic client, or nil when no API key is
// configured
func (c *Client) AnthropicClient() *anthropic.Client {
	return c.anthropic
}

// Bootstrap creates the pgvector extension and the tables of every source.
// It is safe to run repeatedly.
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	for _, src := range c.cfg.Sources {
		ddl, err := storage.SchemaSQL(src.TableName, src.CollectionName)
		if err != nil {
			return NewSourceError("bootstrap", src.Name, err)
		}
		err = c.engine.Transaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
			for _, stmt := range strings.Split(ddl, ";\n") {
				if strings.TrimSpace(stmt) == "" {
					continue
				}
				if _, err := tx.Exec(ctx, stmt, nil); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return NewSourceError("bootstrap", src.Name, err)
		}
		c.logger.Info("tables ready", "source", src.Name, "documents", src.TableName, "embeddings", src.CollectionName)
	}
	return nil
}

// SourceStatus reports how many rows a source has stored
type SourceStatus struct {
	Name       string
	Documents  int64
	Embeddings int64
}

// Status counts the documents and embeddings of every source. All counts are
// read in one transaction.
func (c *Client) Status(ctx context.Context) ([]SourceStatus, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	out := make([]SourceStatus, 0, len(c.cfg.Sources))
	err := c.engine.Transaction(ctx, func(ctx context.Context, _ *sqlengine.Transaction) error {
		for _, src := range c.cfg.Sources {
			page, err := c.store.FindDocuments(ctx, src.TableName, storage.DocumentFilter{Limit: 1})
			if err != nil {
				return NewSourceError("status", src.Name, err)
			}
			n, err := c.store.CountEmbeddings(ctx, src.CollectionName)
			if err != nil {
				return NewSourceError("status", src.Name, err)
			}
			out = append(out, SourceStatus{Name: src.Name, Documents: page.Total, Embeddings: n})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pipeline builds the document pipeline over the configured sources. The
// embedder is only created when an embeddings API key is configured.
func (c *Client) Pipeline() (*pipeline.Pipeline, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	cfg := pipeline.Config{
		Documents:   c.store,
		Embeddings:  c.store,
		Counter:     c.counter(),
		Sources:     c.cfg.Sources,
		ChunkSize:   c.cfg.Embeddings.ChunkSize,
		Prices:      c.cfg.Pricing,
		Concurrency: c.cfg.Embeddings.Concurrency,
		Logger:      c.logger,
	}
	if c.cfg.Embeddings.APIKey != "" {
		cfg.Embedder = c.embedder()
	}
	return pipeline.New(cfg)
}

// Answerer builds the question answerer over the embedding tables of every
// source.
func (c *Client) Answerer() (*rag.Answerer, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if c.anthropic == nil {
		return nil, fmt.Errorf("%w: answer.api_key", ErrMissingAPIKey)
	}
	if c.cfg.Embeddings.APIKey == "" {
		return nil, fmt.Errorf("%w: embeddings.api_key", ErrMissingAPIKey)
	}
	return rag.NewAnswerer(rag.Config{
		Client:      c.anthropic,
		Embedder:    c.embedder(),
		Store:       c.store,
		Collections: c.cfg.Collections(),
		Model:       c.cfg.Answer.Model,
		MaxTokens:   c.cfg.Answer.MaxTokens,
		TopK:        c.cfg.Answer.TopK,
		Logger:      c.logger,
	})
}

func (c *Client) embedder() *embedding.OpenAIEmbedder {
	var opts []embedding.Option
	if c.cfg.Embeddings.BaseURL != "" {
		opts = append(opts, embedding.WithBaseURL(c.cfg.Embeddings.BaseURL))
	}
	if c.cfg.Embeddings.Model != "" {
		opts = append(opts, embedding.WithModel(c.cfg.Embeddings.Model))
	}
	return embedding.NewOpenAIEmbedder(c.cfg.Embeddings.APIKey, opts...)
}

func (c *Client) counter() tokens.Counter {
	if c.cfg.Answer.CountTokens && c.anthropic != nil {
		model := c.cfg.Answer.Model
		if model == "" {
			model = rag.DefaultModel
		}
		return tokens.NewAnthropicCounter(c.anthropic, model)
	}
	return tokens.ApproximateCounter{}
}

// Close closes the pool. Further calls are no-ops.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.engine.Close()
	c.logger.Info("client closed")
}
