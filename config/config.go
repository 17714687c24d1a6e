// Package config loads the legalpg configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/youssefsiam38/legalpg/pipeline"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultDriver         = DriverPgx
	DefaultHost           = "localhost"
	DefaultPort           = 5432
	DefaultSSLMode        = "prefer"
	DefaultMinConns       = 1
	DefaultMaxConns       = 8
	DefaultAcquireTimeout = 30 * time.Second
	DefaultPageSize       = 1000

	DefaultServerAddr      = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 2 * time.Minute
	DefaultShutdownTimeout = 10 * time.Second
)

// Supported database drivers.
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

// Environment variables that override secrets in the file.
const (
	EnvDatabaseURL     = "DATABASE_URL"
	EnvDBPassword      = "LEGALPG_DB_PASSWORD"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvAnthropicKey    = "ANTHROPIC_API_KEY"
	EnvEmbeddingsModel = "LEGALPG_EMBEDDINGS_MODEL"
)

// ErrInvalidConfig is returned when the configuration is invalid
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the configuration file
type Config struct {
	Database   Database               `yaml:"database"`
	Sources    []pipeline.Source      `yaml:"sources"`
	Embeddings Embeddings             `yaml:"embeddings"`
	Pricing    []pipeline.PriceConfig `yaml:"pricing"`
	Answer     Answer                 `yaml:"answer"`
	Server     Server                 `yaml:"server"`
}

// Database configures the connection pool
type Database struct {
	// Driver is "pgx" (jackc/pgx) or "postgres" (database/sql with lib/pq).
	Driver string `yaml:"driver"`
	// URL, when set, takes precedence over the individual fields.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	MinConns int `yaml:"min_conns"`
	MaxConns int `yaml:"max_conns"`
	// AcquireTimeout bounds how long a transaction waits for a connection
	// when the pool is exhausted.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	// PageSize is the number of rows fetched per round trip when streaming.
	PageSize int `yaml:"page_size"`
}

// Embeddings configures the embedding endpoint and chunking
type Embeddings struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	ChunkSize   int    `yaml:"chunk_size"`
	Concurrency int    `yaml:"concurrency"`
}

// Answer configures question answering
type Answer struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	TopK      int    `yaml:"top_k"`
	APIKey    string `yaml:"api_key"`
	// CountTokens switches token counting from the local approximation to
	// the Anthropic token counting API.
	CountTokens bool `yaml:"count_tokens"`
}

// Server configures the HTTP gateway
type Server struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// ShutdownTimeout bounds how long in-flight requests may finish after
	// a shutdown signal.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads, completes and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(bytes.NewReader(raw))
}

// Parse decodes a YAML configuration, applies environment overrides and
// defaults, and validates the result. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv(EnvAnthropicKey); v != "" {
		c.Answer.APIKey = v
	}
	if v := os.Getenv(EnvEmbeddingsModel); v != "" {
		c.Embeddings.Model = v
	}
}

// applyDefaults fills in default values for zero-valued fields.
func (c *Config) applyDefaults() {
	db := &c.Database
	if db.Driver == "" {
		db.Driver = DefaultDriver
	}
	if db.Host == "" {
		db.Host = DefaultHost
	}
	if db.Port == 0 {
		db.Port = DefaultPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultSSLMode
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.AcquireTimeout == 0 {
		db.AcquireTimeout = DefaultAcquireTimeout
	}
	if db.PageSize == 0 {
		db.PageSize = DefaultPageSize
	}
	if c.Embeddings.ChunkSize == 0 {
		c.Embeddings.ChunkSize = pipeline.DefaultChunkSize
	}
	if c.Embeddings.Concurrency == 0 {
		c.Embeddings.Concurrency = pipeline.DefaultEmbedConcurrency
	}

	srv := &c.Server
	if srv.Addr == "" {
		srv.Addr = DefaultServerAddr
	}
	if srv.ReadTimeout == 0 {
		srv.ReadTimeout = DefaultReadTimeout
	}
	if srv.WriteTimeout == 0 {
		srv.WriteTimeout = DefaultWriteTimeout
	}
	if srv.ShutdownTimeout == 0 {
		srv.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	db := c.Database
	if db.Driver != DriverPgx && db.Driver != DriverPostgres {
		return fmt.Errorf("%w: database.driver must be %q or %q, got %q", ErrInvalidConfig, DriverPgx, DriverPostgres, db.Driver)
	}
	if db.URL == "" && db.Name == "" {
		return fmt.Errorf("%w: database.name or database.url is required", ErrInvalidConfig)
	}
	if db.MinConns < 0 || db.MaxConns < 1 || db.MinConns > db.MaxConns {
		return fmt.Errorf("%w: database pool size must satisfy 0 <= min_conns <= max_conns, max_conns >= 1 (got %d, %d)", ErrInvalidConfig, db.MinConns, db.MaxConns)
	}
	if db.AcquireTimeout < 0 {
		return fmt.Errorf("%w: database.acquire_timeout must not be negative", ErrInvalidConfig)
	}
	if db.PageSize < 1 {
		return fmt.Errorf("%w: database.page_size must be positive", ErrInvalidConfig)
	}

	names := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" || s.TableName == "" || s.CollectionName == "" {
			return fmt.Errorf("%w: sources[%d] needs name, table_name and collection_name", ErrInvalidConfig, i)
		}
		if names[s.Name] {
			return fmt.Errorf("%w: duplicate source %q", ErrInvalidConfig, s.Name)
		}
		names[s.Name] = true
	}

	if c.Embeddings.ChunkSize < 1 {
		return fmt.Errorf("%w: embeddings.chunk_size must be positive", ErrInvalidConfig)
	}
	for i, p := range c.Pricing {
		if p.Model == "" {
			return fmt.Errorf("%w: pricing[%d].model is required", ErrInvalidConfig, i)
		}
		if p.Pricing.IsNegative() || p.BatchPricing.IsNegative() {
			return fmt.Errorf("%w: pricing[%d] must not be negative", ErrInvalidConfig, i)
		}
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ConnString returns the database connection URL.
func (d Database) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// Collections returns the embedding table of every source.
func (c *Config) Collections() []string {
	out := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = s.CollectionName
	}
	return out
}
