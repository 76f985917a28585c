// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"seqnum/pkg/logger"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	DSN               string
	ApplicationName   string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolConfig returns the pool used by the server. Each table-locked
// write holds one connection until commit, so MaxConns caps the writers
// that can queue on a lock at once.
func DefaultPoolConfig(dsn string) PoolConfig {
	return PoolConfig{
		DSN:               dsn,
		ApplicationName:   "seqnum",
		MaxConns:          25,
		MinConns:          5,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// Pool is the pgx pool shared by the record store and the audit log.
type Pool struct {
	*pgxpool.Pool
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// NewPool creates a new connection pool with the given configuration.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	// Lock waits show up in pg_stat_activity under this name.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SELECT set_config('application_name', $1, false)", cfg.ApplicationName)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// PoolStats summarizes connection pressure. A writer holding a table lock
// keeps its connection until commit, so lock queues show up here as
// acquired connections and waits for a free one.
type PoolStats struct {
	Total    int32
	Acquired int32
	Idle     int32
	Max      int32

	Acquires         int64
	WaitedAcquires   int64 // acquires that found no idle connection
	CanceledAcquires int64 // acquires abandoned by ctx, e.g. lock timeouts upstream
	AvgAcquireWait   time.Duration
}

// Saturated reports whether every connection is in use.
func (s PoolStats) Saturated() bool {
	return s.Max > 0 && s.Acquired >= s.Max
}

// statSource is the part of *pgxpool.Stat read by Stats.
type statSource interface {
	TotalConns() int32
	AcquiredConns() int32
	IdleConns() int32
	MaxConns() int32
	AcquireCount() int64
	EmptyAcquireCount() int64
	CanceledAcquireCount() int64
	AcquireDuration() time.Duration
}

func summarize(st statSource) PoolStats {
	s := PoolStats{
		Total:            st.TotalConns(),
		Acquired:         st.AcquiredConns(),
		Idle:             st.IdleConns(),
		Max:              st.MaxConns(),
		Acquires:         st.AcquireCount(),
		WaitedAcquires:   st.EmptyAcquireCount(),
		CanceledAcquires: st.CanceledAcquireCount(),
	}
	if s.Acquires > 0 {
		s.AvgAcquireWait = st.AcquireDuration() / time.Duration(s.Acquires)
	}
	return s
}

// Stats returns the current pool pressure.
func (p *Pool) Stats() PoolStats {
	return summarize(p.Pool.Stat())
}

// LogPoolStats logs pool pressure, at warn level when writers had to wait
// for a connection.
func LogPoolStats(ctx context.Context, pool *Pool) {
	s := pool.Stats()
	fields := []any{
		"conns", s.Total,
		"acquired", s.Acquired,
		"max", s.Max,
		"acquires", s.Acquires,
		"waited", s.WaitedAcquires,
		"canceled", s.CanceledAcquires,
		"avg_acquire_wait", s.AvgAcquireWait.String(),
	}
	if s.WaitedAcquires > 0 || s.CanceledAcquires > 0 {
		logger.Warn(ctx, "postgres pool had to queue writers", fields...)
		return
	}
	logger.Info(ctx, "postgres pool stats", fields...)
}
