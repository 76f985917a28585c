package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
)

func TestNewRow_CopiesValues(t *testing.T) {
	src := map[string]any{"question_id": "q1"}
	r := NewRow(src)
	r.Set("number", int64(3))

	assert.False(t, r.Persisted())
	assert.False(t, id.IsNil(r.RecordID()))
	assert.NotContains(t, src, "number")
	assert.Equal(t, int64(3), r.Get("number"))
	assert.Nil(t, r.Get("missing"))
}

func TestLoadRow_DropsIDFromValues(t *testing.T) {
	rowID := id.New()
	r := LoadRow(rowID, map[string]any{"id": rowID.String(), "number": int64(7)})

	assert.True(t, r.Persisted())
	assert.Equal(t, rowID, r.Get(IDColumn))
	assert.NotContains(t, r.Values, IDColumn)

	snap := r.Snapshot()
	assert.Equal(t, rowID.String(), snap[IDColumn])
	assert.Equal(t, int64(7), snap["number"])
}

func TestRow_MarkPersisted(t *testing.T) {
	r := NewRow(nil)
	r.MarkPersisted()
	assert.True(t, r.Persisted())
}

func TestRow_Validate(t *testing.T) {
	tests := []struct {
		name    string
		row     *Row
		wantErr bool
	}{
		{"valid", NewRow(map[string]any{"number": nil}), false},
		{"nil id", &Row{Values: map[string]any{}}, true},
		{"id in values", NewRow(map[string]any{"id": "x"}), true},
		{"bad column", NewRow(map[string]any{"drop table": 1}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.row.Validate(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}
