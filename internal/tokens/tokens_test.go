package tokens

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func TestApproximate(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int
	}{
		{name: "empty string", content: "", expected: 0},
		{name: "very short 1 char", content: "a", expected: 1},
		{name: "4 chars", content: "test", expected: 1},
		{name: "8 chars", content: "12345678", expected: 2},
		{
			name:     "longer text",
			content:  "This is a longer piece of text for testing token approximation.",
			expected: 16, // (63 + 3) / 4
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Approximate(tt.content); got != tt.expected {
				t.Errorf("Approximate(%q) = %d, want %d", tt.content, got, tt.expected)
			}
		})
	}
}

func TestAnthropicCounter_NilClientApproximates(t *testing.T) {
	c := NewAnthropicCounter(nil, "claude-sonnet-4-5")
	got, err := c.Count(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestAnthropicCounter_CachesAPIResults(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"input_tokens": 42}`))
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"), option.WithMaxRetries(0))
	c := NewAnthropicCounter(&client, "claude-sonnet-4-5")

	for range 3 {
		got, err := c.Count(context.Background(), "Article 5: principles relating to processing")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if got != 42 {
			t.Errorf("Count = %d, want 42", got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("API calls = %d, want 1", n)
	}
	if c.UsingFallback() {
		t.Error("UsingFallback() = true, want false")
	}
}

func TestAnthropicCounter_FallsBackOnAPIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	client := anthropic.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("test"), option.WithMaxRetries(0))
	c := NewAnthropicCounter(&client, "claude-sonnet-4-5")

	for range 2 {
		got, err := c.Count(context.Background(), "test")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if got != 1 {
			t.Errorf("Count = %d, want 1", got)
		}
	}
	if !c.UsingFallback() {
		t.Error("UsingFallback() = false, want true")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("API calls = %d, want 1", n)
	}
}
