package sqlengine

import (
	"fmt"
	"iter"

	"github.com/youssefsiam38/legalpg/driver"
)

// DefaultPageSize is the number of rows fetched from a cursor at once.
const DefaultPageSize = 1000

// Record maps a column name to its value.
type Record map[string]any

// Rows is a lazy, forward-only, single-pass stream of query results.
//
// Only the current page of rows is held in memory. The underlying cursor is
// closed when the stream is exhausted, when a fetch fails, or when Close is
// called, whichever happens first.
//
//	rows, err := tx.Query(ctx, sql, params)
//	if err != nil {
//	    return err
//	}
//	defer rows.Close()
//	for rows.Next() {
//	    rec := rows.Record()
//	}
//	return rows.Err()
type Rows struct {
	tx       *Transaction
	cursor   driver.Cursor
	pageSize int
	columns  []string
	page     [][]any
	pos      int
	current  Record
	err      error
	closed   bool
}

// Next advances to the next record, fetching a new page when the current
// one is used up. It returns false once the stream is exhausted or failed.
func (r *Rows) Next() bool {
	if r.closed {
		return false
	}

	if r.pos >= len(r.page) {
		r.page = nil
		page, err := r.cursor.FetchMany(r.pageSize)
		if err != nil {
			r.err = fmt.Errorf("failed to fetch rows: %w", err)
			r.close()
			return false
		}
		if len(page) == 0 {
			r.close()
			return false
		}
		if r.columns == nil {
			r.columns = r.cursor.Columns()
		}
		r.page = page
		r.pos = 0
	}

	row := r.page[r.pos]
	r.page[r.pos] = nil
	r.pos++
	r.current = makeRecord(r.columns, row)
	return true
}

// Record returns the current record.
func (r *Rows) Record() Record {
	return r.current
}

// Columns returns the column names, known once the first page is fetched.
func (r *Rows) Columns() []string {
	return r.columns
}

// Err returns the error, if any, encountered during iteration.
func (r *Rows) Err() error {
	return r.err
}

// Close closes the underlying cursor. It is safe to call more than once.
func (r *Rows) Close() error {
	r.close()
	return r.err
}

// All returns the remaining records as a range-over-func sequence. The
// cursor is closed when the loop ends, including on break.
func (r *Rows) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		defer r.close()
		for r.Next() {
			if !yield(r.Record(), nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (r *Rows) close() {
	if r.closed {
		return
	}
	r.closed = true
	r.page = nil
	r.current = nil
	if err := r.tx.closeCursor(r.cursor); err != nil && r.err == nil {
		r.err = err
	}
}

func makeRecord(columns []string, row []any) Record {
	rec := make(Record, len(row))
	for i, v := range row {
		if i < len(columns) {
			rec[columns[i]] = v
		} else {
			rec[fmt.Sprintf("?column%d?", i)] = v
		}
	}
	return rec
}
