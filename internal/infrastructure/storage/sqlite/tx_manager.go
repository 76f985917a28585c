package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"seqnum/internal/core/tx"
	"seqnum/pkg/logger"
)

var _ tx.Manager = (*TxManager)(nil)

// Querier is implemented by both *sql.Tx and *sql.DB.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager runs functions in database/sql transactions carried by ctx.
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new transaction manager.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

type txKey struct{}

// RunInTransaction executes fn within a transaction.
// Nested calls reuse the existing transaction from context.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin transaction: %w", err), "")
	}

	// With a single connection a leaked tx would block every later call.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err), "")
	}
	return nil
}

// GetQuerier returns the transaction in ctx, or the database.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return m.db
}
