// Package storage opens the configured backend and picks the guard the
// write path runs under.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
	"seqnum/internal/infrastructure/storage/memory"
	"seqnum/internal/infrastructure/storage/postgres"
	"seqnum/internal/infrastructure/storage/sqlite"
	"seqnum/pkg/logger"
)

// Drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Guard strategies.
const (
	GuardAuto  = "auto"
	GuardLock  = "lock"
	GuardRetry = "retry"
)

// Config selects and configures a backend.
type Config struct {
	Driver string
	DSN    string

	// Guard is auto, lock or retry. Auto locks when the store can.
	Guard       string
	MaxRetries  int
	LockTimeout time.Duration

	// Audit records assigned numbers. Postgres only.
	Audit bool
}

// DefaultConfig returns the configuration of an in-process store.
func DefaultConfig() Config {
	return Config{
		Driver:      DriverMemory,
		Guard:       GuardAuto,
		MaxRetries:  sequence.DefaultRetryConfig().MaxAttempts,
		LockTimeout: 5 * time.Second,
	}
}

// Backend is an opened store with the guard and audit sink chosen for it.
type Backend struct {
	Driver string
	Store  records.Store
	Guard  sequence.Guard
	Audit  records.AuditSink

	ping  func(ctx context.Context) error
	close func()
}

// Ping reports whether the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = sequence.DefaultRetryConfig().MaxAttempts
	}
	retry := sequence.RetryConfig{MaxAttempts: cfg.MaxRetries}

	b := &Backend{Driver: strings.ToLower(strings.TrimSpace(cfg.Driver))}
	switch b.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DSN))
		if err != nil {
			return nil, err
		}
		opts := postgres.DefaultTxOptions()
		if cfg.LockTimeout > 0 {
			opts.LockTimeout = cfg.LockTimeout
		}
		store := postgres.NewStore(pool, opts)
		b.Store = store
		b.ping = pool.Ping
		b.close = func() {
			postgres.LogPoolStats(context.Background(), pool)
			pool.Close()
		}

		// A failed INSERT aborts the Postgres transaction; each attempt
		// needs its own savepoint.
		retry.Attempt = store.Savepoint()

		if cfg.Audit {
			audit, err := postgres.NewAuditService(store.TxManager)
			if err != nil {
				pool.Close()
				return nil, err
			}
			if err := audit.EnsureTable(ctx); err != nil {
				pool.Close()
				return nil, err
			}
			b.Audit = audit
		}

	case DriverSQLite:
		db, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.DSN))
		if err != nil {
			return nil, err
		}
		b.Store = sqlite.NewStore(db)
		b.ping = db.PingContext
		b.close = func() { _ = db.Close() }

	case "", DriverMemory:
		b.Driver = DriverMemory
		b.Store = memory.New(memory.Config{LockTimeout: cfg.LockTimeout, UniqueSequences: true})

	default:
		return nil, apperror.NewConfiguration(fmt.Sprintf("unknown database driver %q", cfg.Driver)).
			WithDetail("allowed", []string{DriverPostgres, DriverSQLite, DriverMemory})
	}

	if cfg.Audit && b.Audit == nil {
		logger.Warn(ctx, "assignment audit is only supported on postgres", "driver", b.Driver)
	}

	guard, err := selectGuard(b.Store, cfg.Guard, retry)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Guard = guard

	logger.Info(ctx, "storage opened", "driver", b.Driver, "guard", fmt.Sprintf("%T", guard))
	return b, nil
}

func selectGuard(store records.Store, strategy string, retry sequence.RetryConfig) (sequence.Guard, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", GuardAuto:
		return sequence.GuardFor(store, retry), nil
	case GuardLock:
		locker, ok := store.(sequence.Locker)
		if !ok {
			return nil, apperror.NewConfiguration(fmt.Sprintf("store %T cannot lock tables", store))
		}
		return sequence.NewTableLock(locker), nil
	case GuardRetry:
		return sequence.NewOptimisticRetry(retry), nil
	}
	return nil, apperror.NewConfiguration(fmt.Sprintf("unknown sequence guard %q", strategy)).
		WithDetail("allowed", []string{GuardAuto, GuardLock, GuardRetry})
}
