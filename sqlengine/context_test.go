package sqlengine

import (
	"context"
	"testing"
	"time"
)

type otherKey struct{}

func TestTransactionFromContext(t *testing.T) {
	t.Run("returns transaction when present", func(t *testing.T) {
		tx := &Transaction{id: "tx-1"}
		ctx := WithTransaction(context.Background(), tx)

		if got := TransactionFromContext(ctx); got != tx {
			t.Errorf("got %v, want %v", got, tx)
		}
	})

	t.Run("returns nil when absent", func(t *testing.T) {
		if got := TransactionFromContext(context.Background()); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}

func TestStripTransaction(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	parent, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	parent = context.WithValue(parent, otherKey{}, "kept")
	parent = WithTransaction(parent, &Transaction{id: "tx-1"})

	ctx := StripTransaction(parent)

	if got := TransactionFromContext(ctx); got != nil {
		t.Errorf("TransactionFromContext = %v, want nil", got)
	}
	if got := ctx.Value(otherKey{}); got != "kept" {
		t.Errorf("Value(otherKey) = %v, want kept", got)
	}
	if got, ok := ctx.Deadline(); !ok || !got.Equal(deadline) {
		t.Errorf("Deadline() = %v, %v, want %v, true", got, ok, deadline)
	}

	cancel()
	select {
	case <-ctx.Done():
	default:
		t.Error("stripped context not cancelled with parent")
	}
}
