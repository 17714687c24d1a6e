package sqlengine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/youssefsiam38/legalpg/driver"
)

// Statement is rendered SQL together with its named parameters.
type Statement struct {
	SQL    string
	Params driver.Params
}

// QueryBuilder composes a parameterized statement from a base SQL fragment,
// WHERE conditions, ORDER BY terms, LIMIT and OFFSET.
//
// QueryBuilder is an immutable value: every method returns a new builder and
// leaves the receiver untouched, so one filtered base can be branched into
// several statements:
//
//	base := sqlengine.NewQueryBuilder("SELECT * FROM docs").Where("chapter = {}", "I")
//	count, _ := base.Build()                         // unpaged
//	page, _ := base.OrderBy("article").Limit(20).Build()
//
// Parameters are named param0, param1, ... in the order they are bound. The
// counter only moves forward along a builder's lineage, so names never clash
// between conditions.
type QueryBuilder struct {
	sql        string
	conditions []string
	params     driver.Params
	orders     []string
	limit      int
	hasLimit   bool
	offset     int
	hasOffset  bool
	paramIndex int
	err        error
}

// NewQueryBuilder starts a builder from a base SQL fragment.
func NewQueryBuilder(sql string) QueryBuilder {
	return QueryBuilder{sql: sql}
}

// Where adds a condition. Each {} in the template is replaced, in order, by a
// placeholder bound to the next value; {N} refers to the N-th value. Use {{
// and }} for literal braces. Conditions are combined with AND.
//
// A template error is reported by Build.
func (q QueryBuilder) Where(condition string, values ...any) QueryBuilder {
	next := q.clone()
	if next.err != nil {
		return next
	}

	placeholders := make([]string, len(values))
	for i, v := range values {
		name := "param" + strconv.Itoa(next.paramIndex)
		next.params[name] = v
		placeholders[i] = "%(" + name + ")s"
		next.paramIndex++
	}

	rendered, err := formatCondition(condition, placeholders)
	if err != nil {
		next.err = fmt.Errorf("%w %q: %w", ErrQueryTemplate, condition, err)
		return next
	}
	next.conditions = append(next.conditions, rendered)
	return next
}

// OrderBy appends ORDER BY terms, e.g. "article", "updated_time DESC".
func (q QueryBuilder) OrderBy(terms ...string) QueryBuilder {
	next := q.clone()
	next.orders = append(next.orders, terms...)
	return next
}

// Limit sets the LIMIT.
func (q QueryBuilder) Limit(n int) QueryBuilder {
	next := q.clone()
	next.limit = n
	next.hasLimit = true
	return next
}

// Offset sets the OFFSET.
func (q QueryBuilder) Offset(n int) QueryBuilder {
	next := q.clone()
	next.offset = n
	next.hasOffset = true
	return next
}

// Build renders the statement. The returned parameters are a copy and may be
// modified freely.
func (q QueryBuilder) Build() (Statement, error) {
	if q.err != nil {
		return Statement{}, q.err
	}

	var b strings.Builder
	b.WriteString(q.sql)

	if len(q.conditions) > 0 {
		b.WriteString("\nWHERE ")
		for i, c := range q.conditions {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteByte('(')
			b.WriteString(c)
			b.WriteByte(')')
		}
	}

	if len(q.orders) > 0 {
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(q.orders, ", "))
	}

	if q.hasLimit {
		b.WriteString("\nLIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}

	if q.hasOffset {
		b.WriteString("\nOFFSET ")
		b.WriteString(strconv.Itoa(q.offset))
	}

	params := make(driver.Params, len(q.params))
	maps.Copy(params, q.params)
	return Statement{SQL: b.String(), Params: params}, nil
}

// clone copies the builder so that appending to the copy never writes into
// storage shared with the receiver.
func (q QueryBuilder) clone() QueryBuilder {
	next := q
	next.conditions = slices.Clip(slices.Clone(q.conditions))
	next.orders = slices.Clip(slices.Clone(q.orders))
	next.params = make(driver.Params, len(q.params))
	maps.Copy(next.params, q.params)
	return next
}

// formatCondition substitutes {} and {N} fields in template with args.
func formatCondition(template string, args []string) (string, error) {
	var b strings.Builder
	next := 0

	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", errors.New("unterminated placeholder")
			}
			field := template[i+1 : i+1+end]

			idx := next
			if field == "" {
				next++
			} else {
				n, err := strconv.Atoi(field)
				if err != nil || n < 0 {
					return "", fmt.Errorf("invalid placeholder {%s}", field)
				}
				idx = n
			}
			if idx >= len(args) {
				return "", fmt.Errorf("placeholder %d has no value (%d given)", idx, len(args))
			}
			b.WriteString(args[idx])
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", errors.New("single '}' in template")
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), nil
}
