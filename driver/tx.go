package driver

import "context"

type txKey struct{}

// WithExecutor returns a context carrying tx. Store calls made with it run
// inside tx, so a caller can commit a whole loop run together with its own
// writes.
func WithExecutor(ctx context.Context, tx ExecutorTx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// ExecutorFromContext returns the transaction carried by ctx, or nil.
func ExecutorFromContext(ctx context.Context) ExecutorTx {
	tx, _ := ctx.Value(txKey{}).(ExecutorTx)
	return tx
}

// StripExecutor hides the transaction carried by ctx while keeping its
// deadline, cancellation and other values. A delegated agent run uses it so
// the nested conversation commits independently of the parent's
// transaction.
func StripExecutor(ctx context.Context) context.Context {
	return noTxContext{ctx}
}

type noTxContext struct {
	context.Context
}

func (c noTxContext) Value(key any) any {
	if key == (txKey{}) {
		return nil
	}
	return c.Context.Value(key)
}
