// Package sequence assigns scoped, monotonically increasing numbers to records
// immediately before they are written.
//
// A Sequence is the set of rows of one table sharing the same values in the
// scope columns. Numbers assigned within one Sequence are distinct; they are
// not guaranteed to be contiguous (deletions and manual edits leave gaps,
// which are never backfilled).
package sequence

import (
	"database/sql"
	"math"

	"seqnum/internal/core/id"
)

// Record is a row taking part in one or more sequences.
type Record interface {
	// RecordID returns the stable identity of the row.
	RecordID() id.ID

	// Persisted reports whether the row is already stored (update path).
	Persisted() bool

	// Get returns the current in-memory value of column, nil when unset.
	Get(column string) any

	// Set writes value into column. Assignment never persists by itself.
	Set(column string, value any)
}

// IsNull reports whether v represents SQL NULL.
func IsNull(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case *int64:
		return n == nil
	case *int:
		return n == nil
	case sql.NullInt64:
		return !n.Valid
	case *sql.NullInt64:
		return n == nil || !n.Valid
	}
	return false
}

// Int64 converts a stored sequence value to int64.
// JSON-decoded float64 values are accepted when integral.
func Int64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case *int64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case *int:
		if n == nil {
			return 0, false
		}
		return int64(*n), true
	case sql.NullInt64:
		return n.Int64, n.Valid
	case *sql.NullInt64:
		if n == nil {
			return 0, false
		}
		return n.Int64, n.Valid
	}
	return 0, false
}

// Reset clears columns set by a failed attempt so the next attempt
// (or the caller's retry of the whole write) assigns them again.
func Reset(r Record, columns []string) {
	for _, col := range columns {
		r.Set(col, nil)
	}
}
