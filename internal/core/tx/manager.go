// Package tx provides transaction management abstractions.
// Sequence assignment happens inside the write transaction, so every store
// exposes the same contract and the records service depends only on it.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, and nested transaction support.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Func adapts a plain function to Manager.
type Func func(ctx context.Context, fn func(ctx context.Context) error) error

// RunInTransaction implements Manager.
func (f Func) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}
