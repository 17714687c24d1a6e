package sqlengine

import "context"

// transactionContextKey is the context key for storing a Transaction.
type transactionContextKey struct{}

// WithTransaction returns a new context carrying tx.
// Engine.Transaction does this for the context it passes to its callback.
func WithTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, tx)
}

// TransactionFromContext retrieves the transaction from context, or nil if
// not present.
//
// Example:
//
//	func (s *Store) Save(ctx context.Context, doc *Document) error {
//	    return s.engine.InTransaction(ctx, func(ctx context.Context, tx *sqlengine.Transaction) error {
//	        // joins the caller's transaction when there is one
//	    })
//	}
func TransactionFromContext(ctx context.Context) *Transaction {
	if tx, ok := ctx.Value(transactionContextKey{}).(*Transaction); ok {
		return tx
	}
	return nil
}

// StripTransaction creates a new context without the transaction value,
// preserving deadline, cancellation, and other values. Work started with it
// runs in its own transaction.
func StripTransaction(ctx context.Context) context.Context {
	return &transactionStrippedContext{ctx}
}

// transactionStrippedContext hides the transaction value while delegating
// everything else to the parent.
type transactionStrippedContext struct {
	context.Context
}

func (c *transactionStrippedContext) Value(key any) any {
	if _, ok := key.(transactionContextKey); ok {
		return nil
	}
	return c.Context.Value(key)
}
