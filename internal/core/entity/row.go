// Package entity provides the record types written through the sequence hook.
package entity

import (
	"context"
	"fmt"
	"regexp"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
)

// IDColumn is the primary key column of every sequenced table.
const IDColumn = "id"

var columnRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row is a generic table row: identity, column values and persistence state.
type Row struct {
	ID     id.ID          `json:"id"`
	Values map[string]any `json:"values"`

	persisted bool
}

// NewRow creates an unsaved row with a fresh UUIDv7.
func NewRow(values map[string]any) *Row {
	return &Row{
		ID:     id.New(),
		Values: cloneValues(values),
	}
}

// LoadRow creates a row read from storage.
func LoadRow(rowID id.ID, values map[string]any) *Row {
	vals := cloneValues(values)
	delete(vals, IDColumn)
	return &Row{
		ID:        rowID,
		Values:    vals,
		persisted: true,
	}
}

// RecordID returns the row identity.
func (r *Row) RecordID() id.ID {
	return r.ID
}

// Persisted reports whether the row came from, or was written to, storage.
func (r *Row) Persisted() bool {
	return r.persisted
}

// MarkPersisted flags the row as stored. Called after a successful commit.
func (r *Row) MarkPersisted() {
	r.persisted = true
}

// Get returns the value of column, nil when absent.
func (r *Row) Get(column string) any {
	if column == IDColumn {
		return r.ID
	}
	return r.Values[column]
}

// Set writes value into column.
func (r *Row) Set(column string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	r.Values[column] = value
}

// Columns returns the column names present in the row, excluding the id.
func (r *Row) Columns() []string {
	cols := make([]string, 0, len(r.Values))
	for c := range r.Values {
		cols = append(cols, c)
	}
	return cols
}

// Snapshot returns a copy of all values including the id.
func (r *Row) Snapshot() map[string]any {
	out := cloneValues(r.Values)
	out[IDColumn] = r.ID.String()
	return out
}

// Validate checks that the row has an identity and only well-formed column names.
func (r *Row) Validate(ctx context.Context) error {
	if id.IsNil(r.ID) {
		return apperror.NewValidation("row id is required").WithDetail("field", IDColumn)
	}
	for col := range r.Values {
		if col == IDColumn {
			return apperror.NewValidation("id cannot be set through values").WithDetail("field", col)
		}
		if !columnRe.MatchString(col) {
			return apperror.NewValidation(fmt.Sprintf("invalid column name %q", col)).WithDetail("field", col)
		}
	}
	return nil
}

func cloneValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
