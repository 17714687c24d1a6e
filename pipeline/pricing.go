package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/youssefsiam38/legalpg/internal/tokens"
	"github.com/youssefsiam38/legalpg/storage"
)

var perMillion = decimal.NewFromInt(1_000_000)

// PriceConfig is the price of an embedding model per million tokens
type PriceConfig struct {
	Model        string          `yaml:"model"`
	Pricing      decimal.Decimal `yaml:"pricing"`
	BatchPricing decimal.Decimal `yaml:"batch_pricing"`
}

// EmbeddingCost is the cost of embedding a number of tokens with one model
type EmbeddingCost struct {
	// Name is the data source the tokens belong to, if any.
	Name         string          `json:"name,omitempty"`
	Model        string          `json:"model"`
	Tokens       int             `json:"tokens"`
	Pricing      decimal.Decimal `json:"pricing"`
	BatchPricing decimal.Decimal `json:"batch_pricing"`
}

// EmbeddingCosts prices n tokens with every configured model.
func EmbeddingCosts(n int, prices []PriceConfig) []EmbeddingCost {
	tokenCount := decimal.NewFromInt(int64(n))
	costs := make([]EmbeddingCost, len(prices))
	for i, p := range prices {
		costs[i] = EmbeddingCost{
			Model:        p.Model,
			Tokens:       n,
			Pricing:      tokenCount.Div(perMillion).Mul(p.Pricing),
			BatchPricing: tokenCount.Div(perMillion).Mul(p.BatchPricing),
		}
	}
	return costs
}

// TotalEmbeddingCost sums the tokens of every document and prices the total.
func TotalEmbeddingCost(ctx context.Context, docs []*storage.Document, counter tokens.Counter, prices []PriceConfig) ([]EmbeddingCost, error) {
	total := 0
	for _, doc := range docs {
		n, err := counter.Count(ctx, doc.Contents)
		if err != nil {
			return nil, fmt.Errorf("failed to count tokens of article %s: %w", doc.Article, err)
		}
		total += n
	}
	return EmbeddingCosts(total, prices), nil
}
