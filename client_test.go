package legalpg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/youssefsiam38/legalpg/config"
	"github.com/youssefsiam38/legalpg/internal/testutil"
	"github.com/youssefsiam38/legalpg/pipeline"
	"github.com/youssefsiam38/legalpg/sqlengine"
)

const (
	testTOC = `chapter,chapter_name,section,section_name,article,article_name,url
I,General provisions,,,1,Subject-matter,https://gdpr-info.eu/art-1-gdpr/
I,General provisions,,,2,Material scope,https://gdpr-info.eu/art-2-gdpr/
`
	testText = `cover page` + "\f" + `Article 1
Subject-matter
This Regulation lays down rules.
Article 2
Material scope
This Regulation applies to the processing of personal data.`
)

func TestNewClient_InvalidConfig(t *testing.T) {
	if _, err := NewClient(context.Background(), nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient(nil) err = %v, want %v", err, ErrInvalidConfig)
	}

	cfg := &config.Config{Database: config.Database{Driver: "mysql", Name: "x", MaxConns: 1, PageSize: 1}}
	if _, err := NewClient(context.Background(), cfg, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient(mysql) err = %v, want %v", err, ErrInvalidConfig)
	}
}

func TestSourceError(t *testing.T) {
	cause := errors.New("boom")
	err := NewSourceError("bootstrap", "gdpr", cause)
	if !errors.Is(err, cause) {
		t.Error("SourceError does not unwrap to its cause")
	}
	if got, want := err.Error(), "bootstrap gdpr: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func newTestClient(t *testing.T, driverName string) (*Client, pipeline.Source) {
	t.Helper()
	dbURL := testutil.DatabaseURL(t)

	dir := t.TempDir()
	content := filepath.Join(dir, "gdpr.txt")
	schema := filepath.Join(dir, "gdpr.csv")
	if err := os.WriteFile(content, []byte(testText), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(schema, []byte(testTOC), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	suffix := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	src := pipeline.Source{
		Name:           "gdpr",
		TableName:      "gdpr_documents_" + suffix,
		CollectionName: "gdpr_embeddings_" + suffix,
		Content:        content,
		Schema:         schema,
		KeyWord:        "Article",
		StartPage:      1,
		UpdatedAt:      time.Date(2016, 5, 4, 0, 0, 0, 0, time.UTC),
	}
	cfg := &config.Config{
		Database: config.Database{
			Driver:         driverName,
			URL:            dbURL,
			MinConns:       1,
			MaxConns:       2,
			AcquireTimeout: 5 * time.Second,
			PageSize:       10,
		},
		Sources:    []pipeline.Source{src},
		Embeddings: config.Embeddings{ChunkSize: 512, Concurrency: 1},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := NewClient(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := client.Engine().Transaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
			for _, table := range []string{src.TableName, src.CollectionName} {
				if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table, nil); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Logf("Failed to drop test tables: %v", err)
		}
		client.Close()
	})
	return client, src
}

func TestClient_BootstrapAndStatus(t *testing.T) {
	for _, driverName := range []string{config.DriverPgx, config.DriverPostgres} {
		t.Run(driverName, func(t *testing.T) {
			client, _ := newTestClient(t, driverName)
			ctx := context.Background()

			for range 2 {
				if err := client.Bootstrap(ctx); err != nil {
					t.Fatalf("Bootstrap failed: %v", err)
				}
			}

			p, err := client.Pipeline()
			if err != nil {
				t.Fatalf("Pipeline failed: %v", err)
			}
			if err := p.UploadDocuments(ctx); err != nil {
				t.Fatalf("UploadDocuments failed: %v", err)
			}

			status, err := client.Status(ctx)
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if len(status) != 1 {
				t.Fatalf("status = %d entries, want 1", len(status))
			}
			if status[0].Documents != 2 || status[0].Embeddings != 0 {
				t.Errorf("status = %+v, want 2 documents and 0 embeddings", status[0])
			}

			costs, err := p.PriceEmbeddings(ctx)
			if err != nil {
				t.Fatalf("PriceEmbeddings failed: %v", err)
			}
			if len(costs) != 0 {
				t.Errorf("costs = %d, want 0 without pricing", len(costs))
			}
		})
	}
}

func TestClient_Closed(t *testing.T) {
	client, _ := newTestClient(t, config.DriverPgx)
	client.Close()
	client.Close()

	if err := client.Bootstrap(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Bootstrap err = %v, want %v", err, ErrClientClosed)
	}
	if _, err := client.Pipeline(); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Pipeline err = %v, want %v", err, ErrClientClosed)
	}
}

func TestClient_AnswererRequiresKeys(t *testing.T) {
	client, _ := newTestClient(t, config.DriverPgx)
	if _, err := client.Answerer(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Answerer err = %v, want %v", err, ErrMissingAPIKey)
	}
}
