package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
	"seqnum/internal/infrastructure/storage/sqlbuild"
)

// Compile-time checks.
var (
	_ records.Repository = (*RecordRepo)(nil)
	_ sequence.Reader    = (*RecordRepo)(nil)
)

// QuerierProvider resolves the transaction (or pool) for a context.
// *TxManager implements it.
type QuerierProvider interface {
	GetQuerier(ctx context.Context) Querier
}

// RecordRepo reads and writes rows of configured tables.
type RecordRepo struct {
	txm     QuerierProvider
	dialect sqlbuild.Dialect
}

// NewRecordRepo creates a repository reading through txm's transactions.
func NewRecordRepo(txm QuerierProvider) *RecordRepo {
	return &RecordRepo{txm: txm, dialect: sqlbuild.Postgres}
}

// LastValue implements sequence.Reader.
func (r *RecordRepo) LastValue(ctx context.Context, l sequence.Lookup) (int64, bool, error) {
	sql, args, err := r.dialect.LastValue(l).ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build query: %w", err)
	}

	var last int64
	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapError(fmt.Errorf("last value: %w", err), l.Table)
	}
	return last, true, nil
}

// Taken implements sequence.Reader.
func (r *RecordRepo) Taken(ctx context.Context, l sequence.Lookup, value int64) (bool, error) {
	sql, args, err := r.dialect.Taken(l, value).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(fmt.Errorf("taken: %w", err), l.Table)
	}
	return true, nil
}

// Insert implements records.Repository.
func (r *RecordRepo) Insert(ctx context.Context, schema *records.Schema, row *entity.Row) error {
	sql, args, err := r.dialect.Insert(schema, row).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return mapError(fmt.Errorf("insert %s: %w", schema.Name, err), schema.Name)
	}
	return nil
}

// Update implements records.Repository.
func (r *RecordRepo) Update(ctx context.Context, schema *records.Schema, row *entity.Row) error {
	if len(row.Values) == 0 {
		return nil
	}
	sql, args, err := r.dialect.Update(schema, row).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return mapError(fmt.Errorf("update %s: %w", schema.Name, err), schema.Name)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(schema.Name, row.ID.String())
	}
	return nil
}

// GetByID implements records.Repository.
func (r *RecordRepo) GetByID(ctx context.Context, schema *records.Schema, rowID id.ID) (*entity.Row, error) {
	sql, args, err := r.dialect.GetByID(schema, rowID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m map[string]any
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(schema.Name, rowID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return sqlbuild.RowFromMap(m)
}

// List implements records.Repository.
func (r *RecordRepo) List(ctx context.Context, schema *records.Schema, filter records.ListFilter) (records.ListResult, error) {
	result := records.ListResult{Limit: filter.Limit, Offset: filter.Offset}

	page, count, err := r.dialect.List(schema, filter)
	if err != nil {
		return result, apperror.NewValidation(err.Error())
	}

	querier := r.txm.GetQuerier(ctx)

	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	sql, args, err := page.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []map[string]any
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}

	result.Items = make([]*entity.Row, 0, len(rows))
	for _, m := range rows {
		row, err := sqlbuild.RowFromMap(m)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, row)
	}
	return result, nil
}

// Delete implements records.Repository.
func (r *RecordRepo) Delete(ctx context.Context, schema *records.Schema, rowID id.ID) error {
	sql, args, err := r.dialect.Delete(schema, rowID).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return mapError(fmt.Errorf("delete %s: %w", schema.Name, err), schema.Name)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(schema.Name, rowID.String())
	}
	return nil
}

// Duplicates implements records.Repository.
func (r *RecordRepo) Duplicates(ctx context.Context, schema *records.Schema, spec sequence.Spec) ([]records.Duplicate, error) {
	sql, args, err := r.dialect.Duplicates(schema, spec).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []map[string]any
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("duplicates: %w", err)
	}
	return sqlbuild.DuplicatesFromMaps(spec, rows)
}

// Store bundles the transaction manager and the repository into a
// records.Store that also locks tables.
type Store struct {
	*TxManager
	*RecordRepo
}

var (
	_ records.Store   = (*Store)(nil)
	_ sequence.Locker = (*Store)(nil)
)

// NewStore creates a Postgres-backed store.
func NewStore(pool *Pool, opts TxOptions) *Store {
	txm := NewTxManager(pool, opts)
	return &Store{TxManager: txm, RecordRepo: NewRecordRepo(txm)}
}
