package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
	"seqnum/internal/infrastructure/storage/sqlbuild"
)

// Store implements records.Store over SQLite. It does not implement
// sequence.Locker, so the records service pairs it with optimistic retry.
type Store struct {
	*TxManager
	dialect sqlbuild.Dialect
}

var _ records.Store = (*Store)(nil)

// NewStore creates a store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{TxManager: NewTxManager(db), dialect: sqlbuild.SQLite}
}

// LastValue implements sequence.Reader.
func (s *Store) LastValue(ctx context.Context, l sequence.Lookup) (int64, bool, error) {
	query, args, err := s.dialect.LastValue(l).ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build query: %w", err)
	}

	var last int64
	err = s.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapError(fmt.Errorf("last value: %w", err), l.Table)
	}
	return last, true, nil
}

// Taken implements sequence.Reader.
func (s *Store) Taken(ctx context.Context, l sequence.Lookup, value int64) (bool, error) {
	query, args, err := s.dialect.Taken(l, value).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = s.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(fmt.Errorf("taken: %w", err), l.Table)
	}
	return true, nil
}

// Insert implements records.Repository.
func (s *Store) Insert(ctx context.Context, schema *records.Schema, row *entity.Row) error {
	query, args, err := s.dialect.Insert(schema, row).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.GetQuerier(ctx).ExecContext(ctx, query, args...); err != nil {
		return mapError(fmt.Errorf("insert %s: %w", schema.Name, err), schema.Name)
	}
	return nil
}

// Update implements records.Repository.
func (s *Store) Update(ctx context.Context, schema *records.Schema, row *entity.Row) error {
	if len(row.Values) == 0 {
		return nil
	}
	query, args, err := s.dialect.Update(schema, row).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.GetQuerier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(fmt.Errorf("update %s: %w", schema.Name, err), schema.Name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NewNotFound(schema.Name, row.ID.String())
	}
	return nil
}

// GetByID implements records.Repository.
func (s *Store) GetByID(ctx context.Context, schema *records.Schema, rowID id.ID) (*entity.Row, error) {
	query, args, err := s.dialect.GetByID(schema, rowID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m map[string]any
	if err := sqlscan.Get(ctx, s.GetQuerier(ctx), &m, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperror.NewNotFound(schema.Name, rowID.String())
		}
		return nil, fmt.Errorf("get by id: %w", err)
	}
	return sqlbuild.RowFromMap(m)
}

// List implements records.Repository.
func (s *Store) List(ctx context.Context, schema *records.Schema, filter records.ListFilter) (records.ListResult, error) {
	result := records.ListResult{Limit: filter.Limit, Offset: filter.Offset}

	page, count, err := s.dialect.List(schema, filter)
	if err != nil {
		return result, apperror.NewValidation(err.Error())
	}
	querier := s.GetQuerier(ctx)

	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRowContext(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	query, args, err := page.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []map[string]any
	if err := sqlscan.Select(ctx, querier, &rows, query, args...); err != nil {
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
func (s *Store) Delete(ctx context.Context, schema *records.Schema, rowID id.ID) error {
	query, args, err := s.dialect.Delete(schema, rowID).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	res, err := s.GetQuerier(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(fmt.Errorf("delete %s: %w", schema.Name, err), schema.Name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NewNotFound(schema.Name, rowID.String())
	}
	return nil
}

// Duplicates implements records.Repository.
func (s *Store) Duplicates(ctx context.Context, schema *records.Schema, spec sequence.Spec) ([]records.Duplicate, error) {
	query, args, err := s.dialect.Duplicates(schema, spec).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []map[string]any
	if err := sqlscan.Select(ctx, s.GetQuerier(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("duplicates: %w", err)
	}
	return sqlbuild.DuplicatesFromMaps(spec, rows)
}
