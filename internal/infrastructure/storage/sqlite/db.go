// Package sqlite provides a SQLite-backed store for sequenced tables.
// SQLite has no table lock usable from a transaction, so writes rely on a
// unique index over (scope columns, sequence column) and optimistic retry.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Config configures the SQLite connection.
type Config struct {
	DSN string

	// BusyTimeout makes writers wait for the database lock (default 5s).
	BusyTimeout time.Duration

	// MaxOpenConns defaults to 1. In-memory databases must keep it at 1.
	MaxOpenConns int
}

// DefaultConfig returns defaults for dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:          dsn,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	}
}

// Open opens the database and applies connection pragmas.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	pragmas := []string{"PRAGMA foreign_keys=ON"}
	if !strings.Contains(cfg.DSN, "mode=memory") && cfg.DSN != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return db, nil
}
