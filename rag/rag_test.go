package rag

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/youssefsiam38/legalpg/storage"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type searchStore struct {
	results map[string][]*storage.ScoredDocument
	queries []storage.SimilarityQuery
}

func (s *searchStore) ListEmbeddings(context.Context, string) iter.Seq2[*storage.EmbeddedDocument, error] {
	return func(func(*storage.EmbeddedDocument, error) bool) {}
}

func (s *searchStore) ReplaceEmbeddings(context.Context, string, []*storage.EmbeddedDocument) error {
	return errors.New("read only")
}

func (s *searchStore) SimilarDocuments(_ context.Context, table string, _ []float32, q storage.SimilarityQuery) ([]*storage.ScoredDocument, error) {
	s.queries = append(s.queries, q)
	return s.results[table], nil
}

func (s *searchStore) CountEmbeddings(context.Context, string) (int64, error) {
	return 0, nil
}

func TestAnswerer_Answer(t *testing.T) {
	var request struct {
		Model       string                  `json:"model"`
		Temperature *float64                `json:"temperature"`
		System      []struct{ Text string } `json:"system"`
		Messages    []struct {
			Role    string `json:"role"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "Consent must be **freely given**."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 8}
		}`))
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"), option.WithMaxRetries(0))
	store := &searchStore{results: map[string][]*storage.ScoredDocument{
		"gdpr_embeddings":   {{Article: "7", URL: "https://gdpr-info.eu/art-7-gdpr/", Contents: "Conditions for consent"}},
		"ai_act_embeddings": {{Article: "5", URL: "https://ai-act/art-5", Contents: "Prohibited practices"}},
	}}

	a, err := NewAnswerer(Config{
		Client:      &client,
		Embedder:    fixedEmbedder{},
		Store:       store,
		Collections: []string{"gdpr_embeddings", "ai_act_embeddings"},
	})
	if err != nil {
		t.Fatalf("NewAnswerer failed: %v", err)
	}

	answer, err := a.Answer(context.Background(), "What is valid consent?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if answer.Text != "Consent must be **freely given**." {
		t.Errorf("Text = %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Errorf("Sources = %d, want 2", len(answer.Sources))
	}
	for _, q := range store.queries {
		if q.TopK != storage.DefaultTopK {
			t.Errorf("TopK = %d, want %d", q.TopK, storage.DefaultTopK)
		}
	}

	if request.Model != DefaultModel {
		t.Errorf("model = %q, want %q", request.Model, DefaultModel)
	}
	if request.Temperature == nil || *request.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", request.Temperature)
	}
	if len(request.System) != 1 || request.System[0].Text != SystemPrompt {
		t.Errorf("system = %+v", request.System)
	}
	if len(request.Messages) != 1 || len(request.Messages[0].Content) != 2 {
		t.Fatalf("messages = %+v", request.Messages)
	}
	if got := request.Messages[0].Content[0].Text; got != "```What is valid consent?```" {
		t.Errorf("question block = %q", got)
	}
	if got := request.Messages[0].Content[1].Text; !strings.Contains(got, "Article 7") || !strings.Contains(got, "Prohibited practices") {
		t.Errorf("context block = %q", got)
	}
}

func TestNewAnswerer_Validation(t *testing.T) {
	client := anthropic.NewClient(option.WithAPIKey("test"))
	if _, err := NewAnswerer(Config{Client: &client, Embedder: fixedEmbedder{}, Store: &searchStore{}}); err == nil {
		t.Error("NewAnswerer without collections succeeded, want error")
	}
	if _, err := NewAnswerer(Config{Collections: []string{"c"}}); err == nil {
		t.Error("NewAnswerer without client succeeded, want error")
	}
}

func TestRenderHTML(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		contains []string
		excludes []string
	}{
		{
			name:     "formatting",
			markdown: "Consent must be **freely given** (see [Art. 7](https://gdpr-info.eu/art-7-gdpr/)).",
			contains: []string{"<strong>freely given</strong>", `href="https://gdpr-info.eu/art-7-gdpr/"`},
		},
		{
			name:     "list",
			markdown: "- lawfulness\n- fairness\n",
			contains: []string{"<ul>", "<li>lawfulness</li>"},
		},
		{
			name:     "scripts are removed",
			markdown: "hello <script>alert(1)</script> [x](javascript:alert(1))",
			excludes: []string{"<script", "javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := RenderHTML(tt.markdown)
			if err != nil {
				t.Fatalf("RenderHTML failed: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(html, want) {
					t.Errorf("HTML missing %q: %s", want, html)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(html, bad) {
					t.Errorf("HTML contains %q: %s", bad, html)
				}
			}
		})
	}
}
