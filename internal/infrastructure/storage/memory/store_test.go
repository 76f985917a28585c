package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
)

func answersSchema(t *testing.T) *records.Schema {
	t.Helper()
	seq, err := sequence.NewTable("answers", sequence.DefaultConfig(),
		sequence.Spec{Scope: []string{"question_id"}})
	require.NoError(t, err)
	schema, err := records.NewSchema("answers", []string{"body"}, seq)
	require.NoError(t, err)
	return schema
}

func lookup(question any) sequence.Lookup {
	return sequence.Lookup{
		Table:  "answers",
		Column: "number",
		Scope:  []sequence.Condition{{Column: "question_id", Value: question}},
	}
}

func insert(t *testing.T, s *Store, schema *records.Schema, values map[string]any) *entity.Row {
	t.Helper()
	row := entity.NewRow(values)
	require.NoError(t, s.Insert(context.Background(), schema, row))
	return row
}

func TestStore_LastValueAndTaken(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	schema := answersSchema(t)

	insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(1)})
	insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(4)})
	insert(t, s, schema, map[string]any{"question_id": "q1", "number": nil})
	insert(t, s, schema, map[string]any{"question_id": "q2", "number": int64(9)})
	insert(t, s, schema, map[string]any{"question_id": nil, "number": int64(2)})

	last, found, err := s.LastValue(ctx, lookup("q1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(4), last)

	last, found, err = s.LastValue(ctx, lookup(nil))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), last)

	_, found, err = s.LastValue(ctx, lookup("q3"))
	require.NoError(t, err)
	assert.False(t, found)

	taken, err := s.Taken(ctx, lookup("q1"), 4)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.Taken(ctx, lookup("q1"), 2)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestStore_TakenExclusion(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	schema := answersSchema(t)
	self := insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(3)})

	l := lookup("q1")
	l.Exclude = &sequence.Exclusion{Mode: sequence.ExcludeByID, ID: self.ID}
	taken, err := s.Taken(ctx, l, 3)
	require.NoError(t, err)
	assert.False(t, taken, "own row is excluded by id")

	l.Exclude = &sequence.Exclusion{Mode: sequence.ExcludeByID, ID: id.New()}
	taken, err = s.Taken(ctx, l, 3)
	require.NoError(t, err)
	assert.True(t, taken)

	l.Exclude = &sequence.Exclusion{Mode: sequence.ExcludeByValue, Value: nil}
	taken, err = s.Taken(ctx, l, 3)
	require.NoError(t, err)
	assert.False(t, taken, "comparison with NULL excludes every row")

	l.Exclude = &sequence.Exclusion{Mode: sequence.ExcludeByValue, Value: int64(3)}
	taken, err = s.Taken(ctx, l, 3)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestStore_RollbackUndoesWrites(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	schema := answersSchema(t)
	kept := insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(1)})

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Insert(ctx, schema, entity.NewRow(map[string]any{"question_id": "q1"})))

		upd := entity.LoadRow(kept.ID, map[string]any{"question_id": "q1", "number": int64(7)})
		require.NoError(t, s.Update(ctx, schema, upd))
		require.NoError(t, s.Delete(ctx, schema, kept.ID))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, s.Len("answers"))
	got, err := s.GetByID(ctx, schema, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Get("number"))
}

func TestStore_NestedTransactionReusesOuter(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	schema := answersSchema(t)

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		outer := getTx(ctx)
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			assert.Same(t, outer, getTx(ctx))
			return s.Insert(ctx, schema, entity.NewRow(nil))
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len("answers"))
}

func TestStore_LockTable(t *testing.T) {
	ctx := context.Background()
	s := New(Config{LockTimeout: 20 * time.Millisecond})

	err := s.LockTable(ctx, "answers")
	require.Error(t, err, "locking requires a transaction")

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			assert.NoError(t, s.LockTable(ctx, "answers"))
			assert.NoError(t, s.LockTable(ctx, "answers"), "reentrant")
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err = s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.LockTable(ctx, "answers")
	})
	require.Error(t, err)
	assert.True(t, apperror.IsContention(err))

	err = s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.LockTable(ctx, "questions")
	})
	assert.NoError(t, err, "locks are per table")

	close(done)
	assert.Eventually(t, func() bool {
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.LockTable(ctx, "answers")
		}) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestStore_LockTableHonoursContext(t *testing.T) {
	s := New(Config{})
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.RunInTransaction(context.Background(), func(ctx context.Context) error {
			_ = s.LockTable(ctx, "answers")
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.LockTable(ctx, "answers")
	})
	assert.True(t, apperror.IsContention(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_UniqueSequences(t *testing.T) {
	ctx := context.Background()
	s := New(Config{UniqueSequences: true})
	schema := answersSchema(t)

	insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(1)})
	insert(t, s, schema, map[string]any{"question_id": "q2", "number": int64(1)})
	insert(t, s, schema, map[string]any{"question_id": nil, "number": int64(1)})
	insert(t, s, schema, map[string]any{"question_id": nil, "number": int64(1)})

	err := s.Insert(ctx, schema, entity.NewRow(map[string]any{"question_id": "q1", "number": int64(1)}))
	require.Error(t, err)
	assert.True(t, apperror.IsDuplicate(err))

	err = s.Insert(ctx, schema, entity.NewRow(map[string]any{"question_id": "q1", "number": float64(1)}))
	assert.True(t, apperror.IsDuplicate(err), "numeric values compare by value")
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	schema := answersSchema(t)

	for _, n := range []any{int64(3), int64(1), nil, int64(2)} {
		insert(t, s, schema, map[string]any{"question_id": "q1", "number": n})
	}
	insert(t, s, schema, map[string]any{"question_id": "q2", "number": int64(5)})

	res, err := s.List(ctx, schema, records.ListFilter{
		Where:   map[string]any{"question_id": "q1"},
		OrderBy: "number",
		Limit:   3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.TotalCount)
	require.Len(t, res.Items, 3)
	assert.Equal(t, int64(1), res.Items[0].Get("number"))
	assert.Equal(t, int64(3), res.Items[2].Get("number"))

	res, err = s.List(ctx, schema, records.ListFilter{OrderBy: "-number", Offset: 4, Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Nil(t, res.Items[0].Get("number"), "NULLs sort last")

	err = s.Delete(ctx, schema, id.New())
	assert.True(t, apperror.IsNotFound(err))

	_, err = s.GetByID(ctx, schema, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestStore_ListByID(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	schema := answersSchema(t)

	a := insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(1)})
	insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(2)})

	for name, want := range map[string]any{
		"string": a.ID.String(),
		"id":     a.ID,
	} {
		res, err := s.List(ctx, schema, records.ListFilter{Where: map[string]any{"id": want}})
		require.NoError(t, err, name)
		assert.Equal(t, int64(1), res.TotalCount, name)
		require.Len(t, res.Items, 1, name)
		assert.Equal(t, a.ID, res.Items[0].ID, name)
	}

	for _, want := range []any{id.New().String(), "not-an-id", nil} {
		res, err := s.List(ctx, schema, records.ListFilter{Where: map[string]any{"id": want}})
		require.NoError(t, err)
		assert.Zero(t, res.TotalCount, "%v", want)
	}
}

func TestStore_Duplicates(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	schema := answersSchema(t)

	insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(2)})
	insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(2)})
	insert(t, s, schema, map[string]any{"question_id": "q2", "number": int64(2)})
	insert(t, s, schema, map[string]any{"question_id": "q1", "number": int64(3)})

	spec, ok := schema.Sequences.Spec("number")
	require.True(t, ok)

	dups, err := s.Duplicates(ctx, schema, spec)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, int64(2), dups[0].Value)
	assert.Equal(t, int64(2), dups[0].Count)
	assert.Equal(t, "q1", dups[0].Scope["question_id"])
}
