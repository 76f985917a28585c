// Package memory provides an in-process store for sequenced tables.
// Transactions are undo logs; the table lock is a per-table semaphore held
// until the transaction ends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
)

// Config configures the memory store.
type Config struct {
	// LockTimeout bounds the wait for a table lock. Zero waits until ctx is done.
	LockTimeout time.Duration

	// UniqueSequences rejects writes that would repeat a value within a
	// Sequence, like a unique index over (scope columns, sequence column).
	UniqueSequences bool
}

// Store keeps rows in maps guarded by a mutex.
type Store struct {
	cfg Config

	mu     sync.Mutex
	tables map[string]*table

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

type table struct {
	rows map[id.ID]map[string]any
}

var (
	_ records.Store   = (*Store)(nil)
	_ sequence.Locker = (*Store)(nil)
)

// New creates an empty store.
func New(cfg Config) *Store {
	return &Store{
		cfg:    cfg,
		tables: make(map[string]*table),
		locks:  make(map[string]chan struct{}),
	}
}

// --- Transactions ---

type txKey struct{}

type txState struct {
	undo  []func()
	locks []string
}

func getTx(ctx context.Context) *txState {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st
	}
	return nil
}

// RunInTransaction implements tx.Manager. Nested calls reuse the outer
// transaction. On error every write of the transaction is undone.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if getTx(ctx) != nil {
		return fn(ctx)
	}

	st := &txState{}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(st)
			s.release(st)
			panic(p)
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, st))
	if err != nil {
		s.rollback(st)
	}
	s.release(st)
	return err
}

func (s *Store) rollback(st *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
	st.undo = nil
}

func (s *Store) release(st *txState) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	for _, name := range st.locks {
		<-s.locks[name]
	}
	st.locks = nil
}

// record registers an undo step. Must be called with s.mu held.
func record(ctx context.Context, undo func()) {
	if st := getTx(ctx); st != nil {
		st.undo = append(st.undo, undo)
	}
}

// LockTable implements sequence.Locker.
func (s *Store) LockTable(ctx context.Context, name string) error {
	st := getTx(ctx)
	if st == nil {
		return fmt.Errorf("lock table %s: no transaction in context", name)
	}
	for _, held := range st.locks {
		if held == name {
			return nil
		}
	}

	s.lockMu.Lock()
	ch, ok := s.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[name] = ch
	}
	s.lockMu.Unlock()

	var timeout <-chan time.Time
	if s.cfg.LockTimeout > 0 {
		timer := time.NewTimer(s.cfg.LockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		st.locks = append(st.locks, name)
		return nil
	case <-ctx.Done():
		return apperror.NewContention(name).WithCause(ctx.Err())
	case <-timeout:
		return apperror.NewContention(name).WithDetail("lock_timeout", s.cfg.LockTimeout.String())
	}
}

// --- sequence.Reader ---

// LastValue implements sequence.Reader.
func (s *Store) LastValue(ctx context.Context, l sequence.Lookup) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		last  int64
		found bool
	)
	for _, row := range s.table(l.Table).rows {
		if !matchScope(row, l.Scope) {
			continue
		}
		v, ok := sequence.Int64(row[l.Column])
		if !ok {
			continue
		}
		if !found || v > last {
			last, found = v, true
		}
	}
	return last, found, nil
}

// Taken implements sequence.Reader.
func (s *Store) Taken(ctx context.Context, l sequence.Lookup, value int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.Exclude != nil && l.Exclude.Mode == sequence.ExcludeByValue && sequence.IsNull(l.Exclude.Value) {
		// col = NULL is never true, so NOT (col = NULL) filters out every row.
		return false, nil
	}

	for rowID, row := range s.table(l.Table).rows {
		if !matchScope(row, l.Scope) {
			continue
		}
		v, ok := sequence.Int64(row[l.Column])
		if !ok || v != value {
			continue
		}
		if excluded(rowID, row[l.Column], l.Exclude) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func excluded(rowID id.ID, current any, ex *sequence.Exclusion) bool {
	if ex == nil {
		return false
	}
	if ex.Mode == sequence.ExcludeByValue {
		return equal(current, ex.Value)
	}
	return rowID == ex.ID
}

// --- records.Repository ---

// Insert implements records.Repository.
func (s *Store) Insert(ctx context.Context, schema *records.Schema, row *entity.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(schema.Name)
	if _, ok := t.rows[row.ID]; ok {
		return apperror.NewDuplicate(schema.Name, entity.IDColumn, row.ID.String())
	}
	values := copyValues(row.Values)
	if err := s.checkUnique(schema, t, row.ID, values); err != nil {
		return err
	}

	t.rows[row.ID] = values
	record(ctx, func() { delete(t.rows, row.ID) })
	return nil
}

// Update implements records.Repository.
func (s *Store) Update(ctx context.Context, schema *records.Schema, row *entity.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(schema.Name)
	old, ok := t.rows[row.ID]
	if !ok {
		return apperror.NewNotFound(schema.Name, row.ID.String())
	}
	values := copyValues(row.Values)
	if err := s.checkUnique(schema, t, row.ID, values); err != nil {
		return err
	}

	t.rows[row.ID] = values
	record(ctx, func() { t.rows[row.ID] = old })
	return nil
}

// GetByID implements records.Repository.
func (s *Store) GetByID(ctx context.Context, schema *records.Schema, rowID id.ID) (*entity.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, ok := s.table(schema.Name).rows[rowID]
	if !ok {
		return nil, apperror.NewNotFound(schema.Name, rowID.String())
	}
	return entity.LoadRow(rowID, values), nil
}

// List implements records.Repository.
func (s *Store) List(ctx context.Context, schema *records.Schema, filter records.ListFilter) (records.ListResult, error) {
	s.mu.Lock()
	var items []*entity.Row
	for rowID, values := range s.table(schema.Name).rows {
		if !matchWhere(rowID, values, filter.Where) {
			continue
		}
		items = append(items, entity.LoadRow(rowID, values))
	}
	s.mu.Unlock()

	sortRows(items, filter.OrderBy)

	total := int64(len(items))
	start := min(filter.Offset, len(items))
	end := len(items)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(items))
	}

	return records.ListResult{
		Items:      items[start:end],
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// Delete implements records.Repository.
func (s *Store) Delete(ctx context.Context, schema *records.Schema, rowID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(schema.Name)
	old, ok := t.rows[rowID]
	if !ok {
		return apperror.NewNotFound(schema.Name, rowID.String())
	}
	delete(t.rows, rowID)
	record(ctx, func() { t.rows[rowID] = old })
	return nil
}

// Duplicates implements records.Repository.
func (s *Store) Duplicates(ctx context.Context, schema *records.Schema, spec sequence.Spec) ([]records.Duplicate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type group struct {
		scope map[string]any
		value int64
		count int64
	}
	groups := make(map[string]*group)
	var keys []string

	for _, row := range s.table(schema.Name).rows {
		v, ok := sequence.Int64(row[spec.Column])
		if !ok {
			continue
		}
		scope := make(map[string]any, len(spec.Scope))
		parts := make([]string, 0, len(spec.Scope)+1)
		for _, col := range spec.Scope {
			scope[col] = row[col]
			parts = append(parts, keyOf(row[col]))
		}
		parts = append(parts, fmt.Sprint(v))
		key := strings.Join(parts, "\x00")

		g, ok := groups[key]
		if !ok {
			g = &group{scope: scope, value: v}
			groups[key] = g
			keys = append(keys, key)
		}
		g.count++
	}

	var out []records.Duplicate
	for _, k := range keys {
		if g := groups[k]; g.count > 1 {
			out = append(out, records.Duplicate{Scope: g.scope, Value: g.value, Count: g.count})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

// checkUnique enforces one unique constraint per sequence spec. Must be
// called with s.mu held. NULLs never collide.
func (s *Store) checkUnique(schema *records.Schema, t *table, self id.ID, values map[string]any) error {
	if !s.cfg.UniqueSequences {
		return nil
	}
	for _, spec := range schema.Sequences.Specs() {
		v, ok := sequence.Int64(values[spec.Column])
		if !ok {
			continue
		}
		scope := make([]sequence.Condition, 0, len(spec.Scope))
		for _, col := range spec.Scope {
			if sequence.IsNull(values[col]) {
				scope = nil
				break
			}
			scope = append(scope, sequence.Condition{Column: col, Value: values[col]})
		}
		if scope == nil && len(spec.Scope) > 0 {
			continue
		}
		for rowID, row := range t.rows {
			if rowID == self || !matchScope(row, scope) {
				continue
			}
			if other, ok := sequence.Int64(row[spec.Column]); ok && other == v {
				return apperror.NewDuplicate(schema.Name, spec.Column, fmt.Sprint(v))
			}
		}
	}
	return nil
}

// table returns the named table, creating it. Must be called with s.mu held.
func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[id.ID]map[string]any)}
		s.tables[name] = t
	}
	return t
}

// Len returns the number of rows in a table.
func (s *Store) Len(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table(name).rows)
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
