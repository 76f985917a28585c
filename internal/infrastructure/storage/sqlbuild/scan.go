package sqlbuild

import (
	"fmt"

	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
)

// RowFromMap converts a row scanned into map[string]any into an entity.Row.
func RowFromMap(m map[string]any) (*entity.Row, error) {
	rowID, err := ParseID(m[entity.IDColumn])
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(m))
	for col, v := range m {
		if col == entity.IDColumn {
			continue
		}
		values[col] = Normalize(v)
	}
	return entity.LoadRow(rowID, values), nil
}

// ParseID accepts the representations drivers return for the id column.
func ParseID(v any) (id.ID, error) {
	switch x := v.(type) {
	case id.ID:
		return x, nil
	case [16]byte:
		return id.ID(x), nil
	case string:
		return id.Parse(x)
	case []byte:
		if len(x) == 16 {
			var out id.ID
			copy(out[:], x)
			return out, nil
		}
		return id.Parse(string(x))
	}
	return id.Nil(), fmt.Errorf("unexpected id value %T", v)
}

// Normalize widens driver integers to int64 so sequence values compare uniformly.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	}
	return v
}

// DuplicatesFromMaps converts rows of a Duplicates query.
func DuplicatesFromMaps(spec sequence.Spec, rows []map[string]any) ([]records.Duplicate, error) {
	out := make([]records.Duplicate, 0, len(rows))
	for _, m := range rows {
		value, ok := sequence.Int64(Normalize(m[spec.Column]))
		if !ok {
			return nil, fmt.Errorf("unexpected %s value %T", spec.Column, m[spec.Column])
		}
		count, ok := sequence.Int64(Normalize(m[CountColumn]))
		if !ok {
			return nil, fmt.Errorf("unexpected count value %T", m[CountColumn])
		}
		scope := make(map[string]any, len(spec.Scope))
		for _, col := range spec.Scope {
			scope[col] = Normalize(m[col])
		}
		out = append(out, records.Duplicate{Scope: scope, Value: value, Count: count})
	}
	return out, nil
}
