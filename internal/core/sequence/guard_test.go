package sequence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/tx"
)

type fakeLocker struct {
	err    error
	tables []string
}

func (f *fakeLocker) LockTable(ctx context.Context, table string) error {
	f.tables = append(f.tables, table)
	return f.err
}

func TestTableLock_Acquire(t *testing.T) {
	ctx := context.Background()

	locker := &fakeLocker{}
	g := NewTableLock(locker)
	require.NoError(t, g.Acquire(ctx, "answers"))
	assert.Equal(t, []string{"answers"}, locker.tables)

	locker.err = errors.New("connection reset")
	err := g.Acquire(ctx, "answers")
	require.Error(t, err)
	assert.ErrorIs(t, err, locker.err)
	assert.Contains(t, err.Error(), "lock table answers")

	locker.err = apperror.NewContention("answers")
	err = g.Acquire(ctx, "answers")
	assert.Same(t, locker.err, err)
}

func TestTableLock_RunOnce(t *testing.T) {
	calls := 0
	err := NewTableLock(&fakeLocker{}).Run(context.Background(), "answers", func(ctx context.Context) error {
		calls++
		return apperror.NewDuplicate("answers", "number", "1")
	})
	assert.True(t, apperror.IsDuplicate(err))
	assert.Equal(t, 1, calls)
}

func TestOptimisticRetry_SucceedsAfterCollisions(t *testing.T) {
	g := NewOptimisticRetry(RetryConfig{MaxAttempts: 5})
	require.NoError(t, g.Acquire(context.Background(), "answers"))

	calls := 0
	err := g.Run(context.Background(), "answers", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperror.NewDuplicate("answers", "number", "1")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestOptimisticRetry_Exhausted(t *testing.T) {
	g := NewOptimisticRetry(RetryConfig{MaxAttempts: 3})

	calls := 0
	dup := apperror.NewDuplicate("answers", "number", "1")
	err := g.Run(context.Background(), "answers", func(ctx context.Context) error {
		calls++
		return dup
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apperror.IsContention(err))
	assert.ErrorIs(t, err, dup)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 3, appErr.Details["attempts"])
	assert.Equal(t, "answers", appErr.Details["table"])
}

func TestOptimisticRetry_OtherErrorsPassThrough(t *testing.T) {
	g := NewOptimisticRetry(DefaultRetryConfig())

	calls := 0
	boom := errors.New("boom")
	err := g.Run(context.Background(), "answers", func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestOptimisticRetry_FinalDuplicateIsNotRetried(t *testing.T) {
	g := NewOptimisticRetry(RetryConfig{MaxAttempts: 5})

	calls := 0
	dup := apperror.NewDuplicate("answers", "number", "1")
	err := g.Run(context.Background(), "answers", func(ctx context.Context) error {
		calls++
		return Final(fmt.Errorf("write answers: %w", dup))
	})

	assert.Equal(t, 1, calls)
	assert.True(t, apperror.IsDuplicate(err))
	assert.False(t, apperror.IsContention(err))
	assert.ErrorIs(t, err, dup)
	assert.Equal(t, "write answers: "+dup.Error(), err.Error())
}

func TestTableLock_RunUnwrapsFinal(t *testing.T) {
	dup := apperror.NewDuplicate("answers", "number", "1")
	err := NewTableLock(&fakeLocker{}).Run(context.Background(), "answers", func(ctx context.Context) error {
		return Final(dup)
	})
	assert.Same(t, dup, err)
	assert.Nil(t, Final(nil))
}

func TestOptimisticRetry_AttemptWrapper(t *testing.T) {
	wrapped := 0
	attempt := tx.Func(func(ctx context.Context, fn func(ctx context.Context) error) error {
		wrapped++
		return fn(ctx)
	})
	g := NewOptimisticRetry(RetryConfig{MaxAttempts: 4, Attempt: attempt})

	calls := 0
	err := g.Run(context.Background(), "answers", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperror.NewDuplicate("answers", "number", "1")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, wrapped)
}

func TestOptimisticRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewOptimisticRetry(RetryConfig{}).Run(ctx, "answers", func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestGuardFor(t *testing.T) {
	assert.IsType(t, &TableLock{}, GuardFor(&fakeLocker{}, DefaultRetryConfig()))
	assert.IsType(t, &OptimisticRetry{}, GuardFor(struct{}{}, DefaultRetryConfig()))
}
