package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/sequence"
	"seqnum/internal/infrastructure/storage/memory"
	"seqnum/internal/infrastructure/storage/sqlite"
)

func TestOpen_Memory(t *testing.T) {
	b, err := Open(context.Background(), DefaultConfig())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, DriverMemory, b.Driver)
	assert.IsType(t, &memory.Store{}, b.Store)
	assert.IsType(t, &sequence.TableLock{}, b.Guard)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestOpen_SQLiteUsesRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = DriverSQLite
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &sqlite.Store{}, b.Store)
	assert.IsType(t, &sequence.OptimisticRetry{}, b.Guard)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestOpen_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = "oracle"
	_, err := Open(context.Background(), cfg)
	assert.True(t, apperror.IsConfiguration(err))

	cfg = DefaultConfig()
	cfg.Driver = DriverSQLite
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.Guard = GuardLock
	_, err = Open(context.Background(), cfg)
	assert.True(t, apperror.IsConfiguration(err))
}

func TestSelectGuard(t *testing.T) {
	store := memory.New(memory.Config{})
	retry := sequence.DefaultRetryConfig()

	for _, tc := range []struct {
		strategy string
		want     any
	}{
		{"", &sequence.TableLock{}},
		{"auto", &sequence.TableLock{}},
		{"LOCK", &sequence.TableLock{}},
		{"retry", &sequence.OptimisticRetry{}},
	} {
		g, err := selectGuard(store, tc.strategy, retry)
		require.NoError(t, err, tc.strategy)
		assert.IsType(t, tc.want, g, tc.strategy)
	}

	_, err := selectGuard(store, "pessimistic", retry)
	assert.True(t, apperror.IsConfiguration(err))
}
