package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/youssefsiam38/legalpg/internal/tokens"
	"github.com/youssefsiam38/legalpg/storage"
)

// wordCounter counts one token per word.
type wordCounter struct{}

func (wordCounter) Count(_ context.Context, text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w"
	}
	return strings.Join(w, " ")
}

func TestChunkDocuments(t *testing.T) {
	docs := []*storage.Document{
		{Article: "1", URL: "u1", Contents: words(8)},
		{Article: "2", URL: "u2", Contents: words(20)},
		{Article: "3", URL: "u3", Contents: "   "},
	}

	chunks, err := ChunkDocuments(context.Background(), docs, 8, wordCounter{})
	if err != nil {
		t.Fatalf("ChunkDocuments failed: %v", err)
	}

	// Article 1 fits; article 2 is cut into windows of 6 words: 6+6+6+2.
	wantTokens := []int{8, 6, 6, 6, 2}
	if len(chunks) != len(wantTokens) {
		t.Fatalf("chunks = %d, want %d", len(chunks), len(wantTokens))
	}
	for i, want := range wantTokens {
		if chunks[i].Tokens != want {
			t.Errorf("chunks[%d].Tokens = %d, want %d", i, chunks[i].Tokens, want)
		}
	}
	if chunks[0].Article != "1" || chunks[1].Article != "2" || chunks[1].URL != "u2" {
		t.Errorf("chunk metadata wrong: %+v %+v", chunks[0], chunks[1])
	}
	for _, c := range chunks {
		if c.Article == "3" {
			t.Errorf("blank article 3 produced a chunk: %+v", c)
		}
	}
}

func TestChunkDocuments_BlankDocuments(t *testing.T) {
	docs := []*storage.Document{
		{Article: "1", Contents: ""},
		{Article: "2", Contents: " \n\t "},
	}
	chunks, err := ChunkDocuments(context.Background(), docs, 8, wordCounter{})
	if err != nil {
		t.Fatalf("ChunkDocuments failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("chunks = %d, want 0 for blank documents", len(chunks))
	}
}

func TestChunkDocuments_InvalidSize(t *testing.T) {
	if _, err := ChunkDocuments(context.Background(), nil, 0, wordCounter{}); err == nil {
		t.Error("ChunkDocuments with size 0 succeeded, want error")
	}
}

func TestEmbeddingCosts(t *testing.T) {
	prices := []PriceConfig{
		{Model: "text-embedding-3-small", Pricing: decimal.RequireFromString("0.02"), BatchPricing: decimal.RequireFromString("0.01")},
		{Model: "text-embedding-3-large", Pricing: decimal.RequireFromString("0.13"), BatchPricing: decimal.RequireFromString("0.065")},
	}

	costs := EmbeddingCosts(250_000, prices)
	if len(costs) != 2 {
		t.Fatalf("costs = %d, want 2", len(costs))
	}
	tests := []struct {
		got  decimal.Decimal
		want string
	}{
		{costs[0].Pricing, "0.005"},
		{costs[0].BatchPricing, "0.0025"},
		{costs[1].Pricing, "0.0325"},
		{costs[1].BatchPricing, "0.01625"},
	}
	for _, tt := range tests {
		if !tt.got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("cost = %s, want %s", tt.got, tt.want)
		}
	}
	if costs[1].Model != "text-embedding-3-large" || costs[1].Tokens != 250_000 {
		t.Errorf("cost = %+v", costs[1])
	}
}

func TestTotalEmbeddingCost(t *testing.T) {
	docs := []*storage.Document{{Contents: "12345678"}, {Contents: "test"}}
	prices := []PriceConfig{{Model: "m", Pricing: decimal.NewFromInt(1_000_000)}}

	costs, err := TotalEmbeddingCost(context.Background(), docs, tokens.ApproximateCounter{}, prices)
	if err != nil {
		t.Fatalf("TotalEmbeddingCost failed: %v", err)
	}
	if costs[0].Tokens != 3 || !costs[0].Pricing.Equal(decimal.NewFromInt(3)) {
		t.Errorf("cost = %+v, want 3 tokens costing 3", costs[0])
	}
}
