package storage

import (
	"fmt"
	"time"

	"github.com/youssefsiam38/legalpg/sqlengine"
)

// Column readers convert driver values of a record. Drivers disagree on
// integer widths and on whether text arrives as string or []byte.

func stringCol(rec sqlengine.Record, col string) (string, error) {
	switch v := rec[col].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func optStringCol(rec sqlengine.Record, col string) (*string, error) {
	if rec[col] == nil {
		return nil, nil
	}
	s, err := stringCol(rec, col)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func intCol(rec sqlengine.Record, col string) (int64, error) {
	return toInt64(rec[col])
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
}

func floatCol(rec sqlengine.Record, col string) (float64, error) {
	switch f := rec[col].(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	default:
		return 0, fmt.Errorf("column %s: unexpected type %T", col, f)
	}
}

func optTimeCol(rec sqlengine.Record, col string) (*time.Time, error) {
	switch v := rec[col].(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	default:
		return nil, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}
