package driver

import (
	"errors"
	"reflect"
	"testing"
)

func TestPositional(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		params   Params
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "single",
			sql:      "SELECT * FROM t WHERE x = %(x)s",
			params:   Params{"x": 1},
			wantSQL:  "SELECT * FROM t WHERE x = $1",
			wantArgs: []any{1},
		},
		{
			name:     "repeated name reuses position",
			sql:      "UPDATE t SET a = %(a)s, b = %(b)s WHERE a <> %(a)s",
			params:   Params{"a": "x", "b": 2},
			wantSQL:  "UPDATE t SET a = $1, b = $2 WHERE a <> $1",
			wantArgs: []any{"x", 2},
		},
		{
			name:     "escaped percent",
			sql:      "SELECT * FROM t WHERE name LIKE 'a%%' AND id = %(id)s",
			params:   Params{"id": 7},
			wantSQL:  "SELECT * FROM t WHERE name LIKE 'a%' AND id = $1",
			wantArgs: []any{7},
		},
		{
			name:     "nil params is verbatim",
			sql:      "SELECT 10 % 3, '%%'",
			params:   nil,
			wantSQL:  "SELECT 10 % 3, '%%'",
			wantArgs: []any{},
		},
		{
			name:     "unused params are ignored",
			sql:      "SELECT 1",
			params:   Params{"x": 1},
			wantSQL:  "SELECT 1",
			wantArgs: []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Positional(tt.sql, tt.params)
			if err != nil {
				t.Fatalf("Positional() error = %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		params  Params
		wantErr error
	}{
		{"missing param", "SELECT %(x)s", Params{"y": 1}, ErrMissingParam},
		{"unterminated", "SELECT %(x", Params{"x": 1}, ErrMalformedPlaceholder},
		{"bad name", "SELECT %(x y)s", Params{"x y": 1}, ErrMalformedPlaceholder},
		{"empty name", "SELECT %()s", Params{"": 1}, ErrMalformedPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Compile(tt.sql, tt.params, func(name string, _ int) string { return "@" + name })
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompile_NamedPlaceholders(t *testing.T) {
	sql, names, err := Compile(
		"INSERT INTO t(a, b) VALUES (%(a)s, %(b)s) ON CONFLICT (a) DO UPDATE SET b = %(b)s",
		Params{"a": 1, "b": 2},
		func(name string, _ int) string { return "@" + name },
	)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := "INSERT INTO t(a, b) VALUES (@a, @b) ON CONFLICT (a) DO UPDATE SET b = @b"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("names = %v, want [a b]", names)
	}
}
