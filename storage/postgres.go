package storage

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/youssefsiam38/legalpg/driver"
	"github.com/youssefsiam38/legalpg/sqlengine"
)

const documentColumns = `chapter
    , chapter_name
    , section
    , section_name
    , article
    , article_name
    , url
    , contents
    , updated_time`

// PostgresStore implements DocumentStore and EmbeddingStore on top of a
// sqlengine.Engine. Writes join a transaction carried by ctx, if any.
type PostgresStore struct {
	engine *sqlengine.Engine
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(engine *sqlengine.Engine) *PostgresStore {
	return &PostgresStore{engine: engine}
}

// ListDocuments implements DocumentStore. The transaction stays open, and its
// connection checked out, until the loop over the sequence ends.
func (s *PostgresStore) ListDocuments(ctx context.Context, table string) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		ident, err := QuoteTable(table)
		if err != nil {
			yield(nil, err)
			return
		}
		q := fmt.Sprintf("SELECT\n    %s\nFROM %s", documentColumns, ident)

		stopped := false
		err = s.engine.Transaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
			for rec, err := range tx.Stream(ctx, q, nil) {
				if err != nil {
					return err
				}
				doc, err := documentFromRecord(rec)
				if err != nil {
					return err
				}
				if !yield(doc, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, fmt.Errorf("failed to list documents from %s: %w", table, err))
		}
	}
}

// UpsertDocuments implements DocumentStore
func (s *PostgresStore) UpsertDocuments(ctx context.Context, table string, docs []*Document) error {
	ident, err := QuoteTable(table)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (
    %s
)
VALUES (
    %%(chapter)s
    , %%(chapter_name)s
    , %%(section)s
    , %%(section_name)s
    , %%(article)s
    , %%(article_name)s
    , %%(url)s
    , %%(contents)s
    , %%(updated_time)s
)
ON CONFLICT (article) DO UPDATE
SET
    contents = EXCLUDED.contents
    , updated_time = EXCLUDED.updated_time`, ident, documentColumns)

	return s.engine.InTransaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
		for _, doc := range docs {
			if _, err := tx.Exec(ctx, q, documentParams(doc)); err != nil {
				return fmt.Errorf("failed to upsert article %s: %w", doc.Article, err)
			}
		}
		return nil
	})
}

// FindDocuments implements DocumentStore. The count and the page come from
// the same filtered query so they always agree on the filter.
func (s *PostgresStore) FindDocuments(ctx context.Context, table string, filter DocumentFilter) (*DocumentPage, error) {
	ident, err := QuoteTable(table)
	if err != nil {
		return nil, err
	}

	filtered := sqlengine.NewQueryBuilder(fmt.Sprintf("SELECT\n    %s\nFROM %s", documentColumns, ident))
	if filter.Chapter != "" {
		filtered = filtered.Where("chapter = {}", filter.Chapter)
	}
	if filter.Section != "" {
		filtered = filtered.Where("section = {}", filter.Section)
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		filtered = filtered.Where("article_name ILIKE {0} OR contents ILIKE {0}", pattern)
	}
	if !filter.UpdatedSince.IsZero() {
		filtered = filtered.Where("updated_time >= {}", filter.UpdatedSince)
	}

	countStmt, err := filtered.Build()
	if err != nil {
		return nil, err
	}
	countStmt.SQL = "SELECT count(*) FROM (\n" + countStmt.SQL + "\n) AS filtered"

	paged := filtered.OrderBy("length(article)", "article")
	if filter.Limit > 0 {
		paged = paged.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		paged = paged.Offset(filter.Offset)
	}
	pageStmt, err := paged.Build()
	if err != nil {
		return nil, err
	}

	page := &DocumentPage{}
	err = s.engine.InTransaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
		total, _, err := tx.QueryScalar(ctx, countStmt.SQL, countStmt.Params)
		if err != nil {
			return err
		}
		if page.Total, err = toInt64(total); err != nil {
			return fmt.Errorf("failed to read count: %w", err)
		}

		for rec, err := range tx.Stream(ctx, pageStmt.SQL, pageStmt.Params) {
			if err != nil {
				return err
			}
			doc, err := documentFromRecord(rec)
			if err != nil {
				return err
			}
			page.Documents = append(page.Documents, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find documents in %s: %w", table, err)
	}
	return page, nil
}

// ListEmbeddings implements EmbeddingStore
func (s *PostgresStore) ListEmbeddings(ctx context.Context, table string) iter.Seq2[*EmbeddedDocument, error] {
	return func(yield func(*EmbeddedDocument, error) bool) {
		ident, err := QuoteTable(table)
		if err != nil {
			yield(nil, err)
			return
		}
		q := fmt.Sprintf("SELECT id::text AS id, article, url, contents, tokens, embedding::text AS embedding\nFROM %s", ident)

		stopped := false
		err = s.engine.Transaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
			for rec, err := range tx.Stream(ctx, q, nil) {
				if err != nil {
					return err
				}
				doc, err := embeddedFromRecord(rec)
				if err != nil {
					return err
				}
				if !yield(doc, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, fmt.Errorf("failed to list embeddings from %s: %w", table, err))
		}
	}
}

// ReplaceEmbeddings implements EmbeddingStore. Chunks without an ID get a new
// one.
func (s *PostgresStore) ReplaceEmbeddings(ctx context.Context, table string, docs []*EmbeddedDocument) error {
	ident, err := QuoteTable(table)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var deletes []driver.Params
	inserts := make([]driver.Params, 0, len(docs))
	for _, doc := range docs {
		if !seen[doc.Article] {
			seen[doc.Article] = true
			deletes = append(deletes, driver.Params{"article": doc.Article})
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		inserts = append(inserts, driver.Params{
			"id":        doc.ID,
			"article":   doc.Article,
			"url":       doc.URL,
			"contents":  doc.Contents,
			"tokens":    doc.Tokens,
			"embedding": FormatVector(doc.Embedding),
		})
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE article = %%(article)s", ident)
	insertSQL := fmt.Sprintf(`INSERT INTO %s (id, article, url, contents, tokens, embedding)
VALUES (%%(id)s::uuid, %%(article)s, %%(url)s, %%(contents)s, %%(tokens)s, %%(embedding)s::vector)`, ident)

	return s.engine.InTransaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
		if err := tx.ExecBatch(ctx, deleteSQL, deletes); err != nil {
			return fmt.Errorf("failed to delete embeddings: %w", err)
		}
		if err := tx.ExecBatch(ctx, insertSQL, inserts); err != nil {
			return fmt.Errorf("failed to insert embeddings: %w", err)
		}
		return nil
	})
}

// SimilarDocuments implements EmbeddingStore
func (s *PostgresStore) SimilarDocuments(ctx context.Context, table string, embedding []float32, query SimilarityQuery) ([]*ScoredDocument, error) {
	ident, err := QuoteTable(table)
	if err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	topK := query.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	b := sqlengine.NewQueryBuilder(fmt.Sprintf(
		"SELECT article, url, contents, tokens, embedding <=> %%(query)s::vector AS distance\nFROM %s", ident))
	if len(query.Articles) > 0 {
		values := make([]any, len(query.Articles))
		for i, a := range query.Articles {
			values[i] = a
		}
		b = b.Where("article IN ("+strings.TrimSuffix(strings.Repeat("{}, ", len(values)), ", ")+")", values...)
	}
	if query.MaxDistance > 0 {
		b = b.Where("embedding <=> %(query)s::vector <= {}", query.MaxDistance)
	}

	stmt, err := b.OrderBy("distance").Limit(topK).Build()
	if err != nil {
		return nil, err
	}
	stmt.Params["query"] = FormatVector(embedding)

	var result []*ScoredDocument
	err = s.engine.InTransaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
		for rec, err := range tx.Stream(ctx, stmt.SQL, stmt.Params) {
			if err != nil {
				return err
			}
			doc, err := scoredFromRecord(rec)
			if err != nil {
				return err
			}
			result = append(result, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", table, err)
	}
	return result, nil
}

// CountEmbeddings implements EmbeddingStore
func (s *PostgresStore) CountEmbeddings(ctx context.Context, table string) (int64, error) {
	ident, err := QuoteTable(table)
	if err != nil {
		return 0, err
	}

	var count int64
	err = s.engine.InTransaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
		v, _, err := tx.QueryScalar(ctx, "SELECT count(*) FROM "+ident, nil)
		if err != nil {
			return err
		}
		count, err = toInt64(v)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings in %s: %w", table, err)
	}
	return count, nil
}

func documentParams(doc *Document) driver.Params {
	var updated any
	if doc.UpdatedTime != nil {
		updated = *doc.UpdatedTime
	}
	return driver.Params{
		"chapter":      doc.Chapter,
		"chapter_name": doc.ChapterName,
		"section":      optString(doc.Section),
		"section_name": optString(doc.SectionName),
		"article":      doc.Article,
		"article_name": doc.ArticleName,
		"url":          doc.URL,
		"contents":     doc.Contents,
		"updated_time": updated,
	}
}

// optString turns a nil *string into an untyped nil so every driver binds
// NULL.
func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func documentFromRecord(rec sqlengine.Record) (*Document, error) {
	var (
		doc Document
		err error
	)
	if doc.Chapter, err = stringCol(rec, "chapter"); err != nil {
		return nil, err
	}
	if doc.ChapterName, err = stringCol(rec, "chapter_name"); err != nil {
		return nil, err
	}
	if doc.Section, err = optStringCol(rec, "section"); err != nil {
		return nil, err
	}
	if doc.SectionName, err = optStringCol(rec, "section_name"); err != nil {
		return nil, err
	}
	if doc.Article, err = stringCol(rec, "article"); err != nil {
		return nil, err
	}
	if doc.ArticleName, err = stringCol(rec, "article_name"); err != nil {
		return nil, err
	}
	if doc.URL, err = stringCol(rec, "url"); err != nil {
		return nil, err
	}
	if doc.Contents, err = stringCol(rec, "contents"); err != nil {
		return nil, err
	}
	if doc.UpdatedTime, err = optTimeCol(rec, "updated_time"); err != nil {
		return nil, err
	}
	if doc.UpdatedTime != nil {
		t := doc.UpdatedTime.In(time.UTC)
		doc.UpdatedTime = &t
	}
	return &doc, nil
}

func embeddedFromRecord(rec sqlengine.Record) (*EmbeddedDocument, error) {
	var (
		doc EmbeddedDocument
		err error
	)
	if doc.ID, err = stringCol(rec, "id"); err != nil {
		return nil, err
	}
	if doc.Article, err = stringCol(rec, "article"); err != nil {
		return nil, err
	}
	if doc.URL, err = stringCol(rec, "url"); err != nil {
		return nil, err
	}
	if doc.Contents, err = stringCol(rec, "contents"); err != nil {
		return nil, err
	}
	tokens, err := intCol(rec, "tokens")
	if err != nil {
		return nil, fmt.Errorf("column tokens: %w", err)
	}
	doc.Tokens = int(tokens)

	literal, err := stringCol(rec, "embedding")
	if err != nil {
		return nil, err
	}
	if doc.Embedding, err = ParseVector(literal); err != nil {
		return nil, err
	}
	return &doc, nil
}

func scoredFromRecord(rec sqlengine.Record) (*ScoredDocument, error) {
	var (
		doc ScoredDocument
		err error
	)
	if doc.Article, err = stringCol(rec, "article"); err != nil {
		return nil, err
	}
	if doc.URL, err = stringCol(rec, "url"); err != nil {
		return nil, err
	}
	if doc.Contents, err = stringCol(rec, "contents"); err != nil {
		return nil, err
	}
	tokens, err := intCol(rec, "tokens")
	if err != nil {
		return nil, fmt.Errorf("column tokens: %w", err)
	}
	doc.Tokens = int(tokens)
	if doc.Distance, err = floatCol(rec, "distance"); err != nil {
		return nil, err
	}
	return &doc, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Compile-time checks
var (
	_ DocumentStore  = (*PostgresStore)(nil)
	_ EmbeddingStore = (*PostgresStore)(nil)
)
