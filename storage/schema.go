package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrInvalidTableName is returned for a table name that is not one or two
// plain SQL identifiers separated by a dot.
var ErrInvalidTableName = errors.New("invalid table name")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteTable validates a table name such as "legal.gdpr_documents" and
// returns it quoted for use in SQL text.
func QuoteTable(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("%w: %q", ErrInvalidTableName, name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// SchemaSQL returns the DDL creating a document table and its embedding
// table. It is idempotent and requires the pgvector extension.
func SchemaSQL(documentsTable, embeddingsTable string) (string, error) {
	docs, err := QuoteTable(documentsTable)
	if err != nil {
		return "", err
	}
	embs, err := QuoteTable(embeddingsTable)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("CREATE EXTENSION IF NOT EXISTS vector;\n")
	if schema, _, ok := strings.Cut(documentsTable, "."); ok {
		fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s;\n", pgx.Identifier{schema}.Sanitize())
	}
	if schema, _, ok := strings.Cut(embeddingsTable, "."); ok {
		fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s;\n", pgx.Identifier{schema}.Sanitize())
	}
	fmt.Fprintf(&b, `CREATE TABLE IF NOT EXISTS %s (
    article      TEXT PRIMARY KEY,
    chapter      TEXT NOT NULL,
    chapter_name TEXT NOT NULL,
    section      TEXT,
    section_name TEXT,
    article_name TEXT NOT NULL,
    url          TEXT NOT NULL,
    contents     TEXT NOT NULL,
    updated_time TIMESTAMPTZ
);
`, docs)
	fmt.Fprintf(&b, `CREATE TABLE IF NOT EXISTS %s (
    id        UUID PRIMARY KEY,
    article   TEXT NOT NULL,
    url       TEXT NOT NULL,
    contents  TEXT NOT NULL,
    tokens    INTEGER NOT NULL,
    embedding VECTOR NOT NULL
);
`, embs)
	return b.String(), nil
}
