package api

import (
	"context"
	"net/http"
	"time"

	"github.com/youssefsiam38/legalpg/driver"
	"github.com/youssefsiam38/legalpg/pipeline"
	"github.com/youssefsiam38/legalpg/rag"
	"github.com/youssefsiam38/legalpg/storage"
)

// Pagination bounds for document listings.
const (
	DefaultPageSize = 25
	MaxPageSize     = 200
)

// Answerer answers questions. *rag.Answerer satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

// Config holds API router configuration.
type Config struct {
	// Answerer serves POST /answer. If nil, the endpoint responds 503.
	Answerer Answerer

	// Documents serves the document listings.
	Documents storage.DocumentStore

	// Sources are the legal texts exposed by name.
	Sources []pipeline.Source

	// PageSize is the default listing limit.
	PageSize int

	// Logger for structured logging.
	Logger driver.Logger
}

// router holds the API router state.
type router struct {
	answerer  Answerer
	documents storage.DocumentStore
	sources   map[string]pipeline.Source
	order     []string
	pageSize  int
	logger    driver.Logger
}

// NewRouter creates a new API router.
func NewRouter(cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}

	r := &router{
		answerer:  cfg.Answerer,
		documents: cfg.Documents,
		sources:   make(map[string]pipeline.Source, len(cfg.Sources)),
		pageSize:  cfg.PageSize,
		logger:    driver.OrNop(cfg.Logger),
	}
	if r.pageSize <= 0 {
		r.pageSize = DefaultPageSize
	}
	for _, src := range cfg.Sources {
		r.sources[src.Name] = src
		r.order = append(r.order, src.Name)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /answer", r.handleAnswer)

	mux.HandleFunc("GET /sources", r.handleListSources)
	mux.HandleFunc("GET /sources/{name}/documents", r.handleListDocuments)

	mux.HandleFunc("GET /healthz", r.handleHealth)

	return withMiddleware(mux, r.logger)
}

// withMiddleware wraps the handler with common middleware.
func withMiddleware(handler http.Handler, logger driver.Logger) http.Handler {
	handler = jsonMiddleware(handler)
	handler = recoveryMiddleware(handler, logger)
	handler = logMiddleware(handler, logger)
	return handler
}

// jsonMiddleware sets JSON content type for all responses.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func recoveryMiddleware(next http.Handler, logger driver.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, `{"error":{"code":"internal_error","message":"internal server error"}}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// logMiddleware logs every request at debug level.
func logMiddleware(next http.Handler, logger driver.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
