package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/entity"
)

var columns = []string{"question_id", "kind", "weight"}

func newEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv()
	require.NoError(t, err)
	return env
}

func TestFloor(t *testing.T) {
	env := newEnv(t)
	f, err := env.Floor(`record.question_id == "special" ? 100 : 1`, columns)
	require.NoError(t, err)

	got, err := f.Floor(entity.NewRow(map[string]any{"question_id": "special"}))
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	got, err = f.Floor(entity.NewRow(map[string]any{"question_id": "other"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestFloor_FromColumn(t *testing.T) {
	env := newEnv(t)
	f, err := env.Floor(`int(record.weight) * 10`, columns)
	require.NoError(t, err)

	got, err := f.Floor(entity.NewRow(map[string]any{"weight": 3}))
	require.NoError(t, err)
	assert.Equal(t, int64(30), got)
}

func TestFloor_RuntimeTypeMismatch(t *testing.T) {
	env := newEnv(t)
	f, err := env.Floor(`record.kind`, columns)
	require.NoError(t, err, "dyn output is checked at evaluation")

	_, err = f.Floor(entity.NewRow(map[string]any{"kind": "draft"}))
	assert.Error(t, err)
}

func TestPredicate(t *testing.T) {
	env := newEnv(t)
	p, err := env.Predicate(`record.kind == "draft" || record.question_id == null`, columns)
	require.NoError(t, err)

	tests := []struct {
		values map[string]any
		want   bool
	}{
		{map[string]any{"kind": "draft", "question_id": "q1"}, true},
		{map[string]any{"kind": "final", "question_id": "q1"}, false},
		{map[string]any{"kind": "final"}, true},
	}
	for _, tt := range tests {
		got, err := p.Match(entity.NewRow(tt.values))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v", tt.values)
	}
}

func TestPredicate_SeesID(t *testing.T) {
	env := newEnv(t)
	row := entity.NewRow(nil)
	p, err := env.Predicate(`record.id == "`+row.ID.String()+`"`, columns)
	require.NoError(t, err)

	got, err := p.Match(row)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompileErrors(t *testing.T) {
	env := newEnv(t)

	_, err := env.Floor(`record.kind ==`, columns)
	assert.True(t, apperror.IsConfiguration(err))

	_, err = env.Floor(`"text"`, columns)
	assert.True(t, apperror.IsConfiguration(err), "string is not a floor")

	_, err = env.Predicate(`42`, columns)
	assert.True(t, apperror.IsConfiguration(err), "int is not a predicate")

	_, err = env.Predicate(`unknown_var`, columns)
	assert.True(t, apperror.IsConfiguration(err))
}
