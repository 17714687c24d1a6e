// Package storage persists legal-text documents and their chunk embeddings in
// PostgreSQL through the sqlengine transaction engine.
package storage

import (
	"context"
	"iter"
	"time"
)

// DocumentStore defines document table operations
type DocumentStore interface {
	// ListDocuments streams every document of table in one transaction.
	ListDocuments(ctx context.Context, table string) iter.Seq2[*Document, error]
	// UpsertDocuments inserts new articles and updates the contents and
	// updated_time of existing ones, all in one transaction.
	UpsertDocuments(ctx context.Context, table string, docs []*Document) error
	// FindDocuments returns one filtered page of documents and the total
	// number of matches.
	FindDocuments(ctx context.Context, table string, filter DocumentFilter) (*DocumentPage, error)
}

// EmbeddingStore defines embedding table operations
type EmbeddingStore interface {
	ListEmbeddings(ctx context.Context, table string) iter.Seq2[*EmbeddedDocument, error]
	// ReplaceEmbeddings deletes the stored chunks of every article present in
	// docs and inserts docs in their place.
	ReplaceEmbeddings(ctx context.Context, table string, docs []*EmbeddedDocument) error
	// SimilarDocuments returns the chunks nearest to embedding by cosine
	// distance.
	SimilarDocuments(ctx context.Context, table string, embedding []float32, query SimilarityQuery) ([]*ScoredDocument, error)
	CountEmbeddings(ctx context.Context, table string) (int64, error)
}

// Document is one article of a legal text
type Document struct {
	Chapter     string     `json:"chapter"`
	ChapterName string     `json:"chapter_name"`
	Section     *string    `json:"section,omitempty"`
	SectionName *string    `json:"section_name,omitempty"`
	Article     string     `json:"article"`
	ArticleName string     `json:"article_name"`
	URL         string     `json:"url"`
	Contents    string     `json:"contents"`
	UpdatedTime *time.Time `json:"updated_time,omitempty"`
}

// EmbeddedDocument is one chunk of an article, with its token count and, once
// computed, its embedding
type EmbeddedDocument struct {
	ID        string    `json:"id,omitempty"`
	Article   string    `json:"article"`
	URL       string    `json:"url"`
	Contents  string    `json:"contents"`
	Tokens    int       `json:"tokens"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// ScoredDocument is a chunk returned by a similarity search
type ScoredDocument struct {
	Article  string  `json:"article"`
	URL      string  `json:"url"`
	Contents string  `json:"contents"`
	Tokens   int     `json:"tokens"`
	Distance float64 `json:"distance"`
}

// DocumentFilter selects documents. Zero fields do not filter.
type DocumentFilter struct {
	Chapter string
	Section string
	// Search matches article names and contents case-insensitively.
	Search       string
	UpdatedSince time.Time
	Limit        int
	Offset       int
}

// DocumentPage is one page of FindDocuments results
type DocumentPage struct {
	Documents []*Document
	// Total counts every match, ignoring Limit and Offset.
	Total int64
}

// SimilarityQuery tunes a similarity search
type SimilarityQuery struct {
	// TopK is the number of chunks returned, DefaultTopK when zero.
	TopK int
	// Articles restricts the search to these articles when non-empty.
	Articles []string
	// MaxDistance drops chunks farther than this when positive.
	MaxDistance float64
}

// DefaultTopK is the number of nearest chunks returned per collection.
const DefaultTopK = 3
