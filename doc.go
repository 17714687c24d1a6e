// Package legalpg indexes legal texts in PostgreSQL and answers questions
// about them.
//
// legalpg is opinionated (PostgreSQL + pgvector + Anthropic). Articles are
// extracted from PDF-extracted text and a CSV table of contents, stored in a
// document table, chunked, embedded and stored again in an embedding table.
// Questions are answered by Claude with the nearest chunks in context.
//
// # Key Features
//
//   - Transactional SQL engine with scoped connections and cursors
//   - Streaming query results fetched one page at a time
//   - Immutable query builder with safe placeholder rendering
//   - Drivers for pgx/v5 and database/sql (lib/pq)
//   - Article extraction, chunking and embedding cost estimation
//   - Retrieval-augmented answers rendered to sanitized HTML
//
// # Quick Start
//
// Load a configuration file and open a client:
//
//	cfg, _ := config.Load("legalpg.yaml")
//	client, err := legalpg.NewClient(ctx, cfg, slog.Default())
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Create the tables and run the pipeline:
//
//	_ = client.Bootstrap(ctx)
//	p, _ := client.Pipeline()
//	_ = p.UploadDocuments(ctx)
//	_ = p.UploadEmbeddings(ctx)
//
// Ask a question:
//
//	a, _ := client.Answerer()
//	answer, _ := a.Answer(ctx, "When is consent valid?")
//
// # Transactions
//
// Every database access runs inside a transaction scope. The scope commits
// when the callback returns nil and rolls back otherwise:
//
//	err := client.Engine().Transaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
//	    n, ok, err := tx.QueryScalar(ctx, "SELECT count(*) FROM gdpr_documents", nil)
//	    ...
//	})
//
// Stores called with that ctx join the open transaction instead of starting
// their own.
package legalpg
