package pgxv5

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/youssefsiam38/legalpg/driver"
)

func TestBind(t *testing.T) {
	sql, args, err := bind("SELECT * FROM t WHERE a = %(a)s AND b LIKE '10%%'", driver.Params{"a": 1})
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if want := "SELECT * FROM t WHERE a = @a AND b LIKE '10%'"; sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 || !reflect.DeepEqual(args[0], pgx.NamedArgs{"a": 1}) {
		t.Errorf("args = %v", args)
	}

	if _, _, err := bind("SELECT %(missing)s", driver.Params{}); !errors.Is(err, driver.ErrMissingParam) {
		t.Errorf("err = %v, want %v", err, driver.ErrMissingParam)
	}

	sql, args, err = bind("SELECT 1", nil)
	if err != nil || sql != "SELECT 1" || args != nil {
		t.Errorf("bind(nil) = %q, %v, %v", sql, args, err)
	}
}
