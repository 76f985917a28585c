package sequence

import (
	"context"
	"errors"
	"fmt"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/tx"
	"seqnum/pkg/logger"
)

// Guard gives the read-compute-write section of an assignment the effect of
// mutual exclusion per table.
type Guard interface {
	// Acquire is called by the Assigner before it reads the Sequence.
	Acquire(ctx context.Context, table string) error

	// Run executes write, which assigns numbers and persists the record.
	Run(ctx context.Context, table string, write func(ctx context.Context) error) error
}

// TableLock serializes assignments per table with a transaction-scoped lock.
type TableLock struct {
	locker Locker
}

// NewTableLock creates a table lock guard over the store's Locker.
func NewTableLock(locker Locker) *TableLock {
	return &TableLock{locker: locker}
}

// Acquire implements Guard. The lock lives until the enclosing transaction ends.
func (g *TableLock) Acquire(ctx context.Context, table string) error {
	if err := g.locker.LockTable(ctx, table); err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return fmt.Errorf("lock table %s: %w", table, err)
	}
	return nil
}

// Run implements Guard.
func (g *TableLock) Run(ctx context.Context, table string, write func(ctx context.Context) error) error {
	return unwrapFinal(write(ctx))
}

// finalError stops OptimisticRetry from running the write again.
type finalError struct {
	err error
}

func (e *finalError) Error() string { return e.err.Error() }
func (e *finalError) Unwrap() error { return e.err }

// Final marks err as not caused by an assigned number. Guards return it
// unchanged instead of retrying: a duplicate on a value the caller supplied
// fails the same way on every attempt.
func Final(err error) error {
	if err == nil {
		return nil
	}
	return &finalError{err: err}
}

func unwrapFinal(err error) error {
	var f *finalError
	if errors.As(err, &f) {
		return f.err
	}
	return err
}

// RetryConfig configures OptimisticRetry.
type RetryConfig struct {
	// MaxAttempts bounds how many times the write is tried (default 5).
	MaxAttempts int

	// Attempt wraps each try, e.g. in a savepoint so a failed INSERT does not
	// poison the enclosing transaction. Nil runs the write directly.
	Attempt tx.Manager
}

// DefaultRetryConfig returns standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5}
}

// OptimisticRetry runs assignment without a lock and relies on a unique
// constraint over (scope columns, sequence column) to detect collisions.
type OptimisticRetry struct {
	cfg RetryConfig
}

// NewOptimisticRetry creates a retry guard.
func NewOptimisticRetry(cfg RetryConfig) *OptimisticRetry {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	return &OptimisticRetry{cfg: cfg}
}

// Acquire implements Guard. Nothing is locked.
func (g *OptimisticRetry) Acquire(ctx context.Context, table string) error {
	return nil
}

// Run implements Guard. write must leave the record's sequence columns
// unset when it fails, so the next attempt recomputes them.
func (g *OptimisticRetry) Run(ctx context.Context, table string, write func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if g.cfg.Attempt != nil {
			lastErr = g.cfg.Attempt.RunInTransaction(ctx, write)
		} else {
			lastErr = write(ctx)
		}
		if lastErr == nil {
			return nil
		}
		var final *finalError
		if errors.As(lastErr, &final) {
			return final.err
		}
		if !apperror.IsDuplicate(lastErr) {
			return lastErr
		}

		logger.Warn(ctx, "sequence collision, retrying write",
			"table", table,
			"attempt", attempt,
			"max_attempts", g.cfg.MaxAttempts,
		)
	}

	return apperror.NewContention(table).
		WithDetail("attempts", g.cfg.MaxAttempts).
		WithCause(lastErr)
}

// GuardFor picks TableLock when store can lock tables and OptimisticRetry otherwise.
func GuardFor(store any, cfg RetryConfig) Guard {
	if locker, ok := store.(Locker); ok {
		return NewTableLock(locker)
	}
	return NewOptimisticRetry(cfg)
}
