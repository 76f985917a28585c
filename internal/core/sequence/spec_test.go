package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
)

func TestNewTable_Defaults(t *testing.T) {
	tbl, err := NewTable("answers", DefaultConfig(),
		Spec{Scope: []string{"question_id"}},
		Spec{Column: "position", StartAt: StartAt(10)},
	)
	require.NoError(t, err)

	specs := tbl.Specs()
	require.Len(t, specs, 2)

	assert.Equal(t, "number", specs[0].Column)
	assert.Equal(t, "answers", specs[0].Table())
	floor, err := specs[0].StartAt.Floor(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), floor)

	assert.Equal(t, "position", specs[1].Column)
	floor, err = specs[1].StartAt.Floor(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), floor)

	assert.Equal(t, []string{"number", "question_id", "position"}, tbl.Columns())
}

func TestNewTable_CustomDefaults(t *testing.T) {
	tbl, err := NewTable("invoices", Config{Column: "seq", StartAt: 1000}, Spec{})
	require.NoError(t, err)

	spec, ok := tbl.Spec("seq")
	require.True(t, ok)
	floor, _ := spec.StartAt.Floor(nil)
	assert.Equal(t, int64(1000), floor)

	_, ok = tbl.Spec("number")
	assert.False(t, ok)
}

func TestNewTable_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		table string
		specs []Spec
	}{
		{"duplicate column", "answers", []Spec{{}, {Column: "number"}}},
		{"duplicate explicit column", "answers", []Spec{{Column: "pos"}, {Column: "pos", Scope: []string{"a"}}}},
		{"scope contains column", "answers", []Spec{{Scope: []string{"question_id", "number"}}}},
		{"invalid table", "answers; drop", []Spec{{}}},
		{"invalid column", "answers", []Spec{{Column: "1st"}}},
		{"invalid scope", "answers", []Spec{{Scope: []string{"question id"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.table, DefaultConfig(), tt.specs...)
			require.Error(t, err)
			assert.True(t, apperror.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestNewTable_CopiesScope(t *testing.T) {
	scope := []string{"question_id"}
	tbl, err := NewTable("answers", DefaultConfig(), Spec{Scope: scope})
	require.NoError(t, err)

	scope[0] = "mutated"
	spec, _ := tbl.Spec("number")
	assert.Equal(t, []string{"question_id"}, spec.Scope)

	specs := tbl.Specs()
	specs[0].Column = "other"
	_, ok := tbl.Spec("number")
	assert.True(t, ok)
}

func TestParseSelfExclusion(t *testing.T) {
	for in, want := range map[string]SelfExclusion{"": ExcludeByID, "id": ExcludeByID, "value": ExcludeByValue} {
		got, err := ParseSelfExclusion(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseSelfExclusion("row")
	assert.True(t, apperror.IsConfiguration(err))

	assert.Equal(t, "value", ExcludeByValue.String())
	assert.Equal(t, "id", ExcludeByID.String())
}

func TestIsNullAndInt64(t *testing.T) {
	var nilPtr *int64
	n := int64(4)

	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(nilPtr))
	assert.False(t, IsNull(&n))
	assert.False(t, IsNull(int64(0)))

	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(7), 7, true},
		{7, 7, true},
		{float64(7), 7, true},
		{7.5, 0, false},
		{&n, 4, true},
		{nilPtr, 0, false},
		{"7", 0, false},
		{uint64(1 << 63), 0, false},
	}
	for _, tt := range tests {
		got, ok := Int64(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)
		assert.Equal(t, tt.want, got, "%#v", tt.in)
	}
}
