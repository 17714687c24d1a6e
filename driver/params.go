package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// Compile rewrites %(name)s placeholders in sql with the text returned by
// placeholder, which receives the parameter name and its 1-based position
// among the distinct names in order of first appearance. A repeated name gets
// the position of its first occurrence. %% is rewritten to a literal %.
//
// When params is nil the SQL is returned verbatim, so statements without
// parameters may contain bare % characters.
//
// Compile returns the rewritten SQL and the distinct names in position order.
func Compile(sql string, params Params, placeholder func(name string, pos int) string) (string, []string, error) {
	if params == nil {
		return sql, nil, nil
	}

	var b strings.Builder
	b.Grow(len(sql))

	var names []string
	positions := make(map[string]int)

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c != '%' || i+1 >= len(sql) {
			b.WriteByte(c)
			continue
		}

		switch sql[i+1] {
		case '%':
			b.WriteByte('%')
			i++
		case '(':
			rest := sql[i+2:]
			end := strings.Index(rest, ")s")
			if end < 0 {
				return "", nil, fmt.Errorf("%w at offset %d", ErrMalformedPlaceholder, i)
			}
			name := rest[:end]
			if !isParamName(name) {
				return "", nil, fmt.Errorf("%w at offset %d: %q", ErrMalformedPlaceholder, i, name)
			}
			if _, ok := params[name]; !ok {
				return "", nil, fmt.Errorf("%w: %s", ErrMissingParam, name)
			}

			pos, seen := positions[name]
			if !seen {
				names = append(names, name)
				pos = len(names)
				positions[name] = pos
			}
			b.WriteString(placeholder(name, pos))

			// Skip "(" + name + ")s"; the loop increment consumes the final "s".
			i += 2 + end + 1
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), names, nil
}

// Positional rewrites named placeholders to PostgreSQL $n placeholders and
// returns the matching positional arguments.
func Positional(sql string, params Params) (string, []any, error) {
	compiled, names, err := Compile(sql, params, func(_ string, pos int) string {
		return "$" + strconv.Itoa(pos)
	})
	if err != nil {
		return "", nil, err
	}
	return compiled, Args(names, params), nil
}

// Args returns the values of names in order.
func Args(names []string, params Params) []any {
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = params[name]
	}
	return args
}

func isParamName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
