package memory

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
)

// equal compares two column values with SQL semantics for NULL (never equal)
// and numeric normalization (int64(3) equals float64(3)).
func equal(a, b any) bool {
	if sequence.IsNull(a) || sequence.IsNull(b) {
		return false
	}
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			return x == y
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func numeric(v any) (int64, bool) {
	switch v.(type) {
	case string, []byte, bool:
		return 0, false
	}
	return sequence.Int64(v)
}

func matchScope(row map[string]any, scope []sequence.Condition) bool {
	for _, c := range scope {
		if sequence.IsNull(c.Value) {
			if !sequence.IsNull(row[c.Column]) {
				return false
			}
			continue
		}
		if !equal(row[c.Column], c.Value) {
			return false
		}
	}
	return true
}

func matchWhere(rowID id.ID, row map[string]any, where map[string]any) bool {
	for col, want := range where {
		if col == entity.IDColumn {
			if !matchID(rowID, want) {
				return false
			}
			continue
		}
		if sequence.IsNull(want) {
			if !sequence.IsNull(row[col]) {
				return false
			}
			continue
		}
		if !equal(row[col], want) {
			return false
		}
	}
	return true
}

// matchID accepts an id.ID or its string form. Ids are never NULL.
func matchID(rowID id.ID, want any) bool {
	switch w := want.(type) {
	case id.ID:
		return w == rowID
	case string:
		parsed, err := id.Parse(w)
		return err == nil && parsed == rowID
	case []byte:
		parsed, err := id.Parse(string(w))
		return err == nil && parsed == rowID
	}
	return false
}

func keyOf(v any) string {
	if sequence.IsNull(v) {
		return "<null>"
	}
	if n, ok := numeric(v); ok {
		return fmt.Sprint(n)
	}
	return fmt.Sprint(v)
}

// sortRows orders rows by a column ("-col" descending), NULLs last,
// ties broken by id.
func sortRows(rows []*entity.Row, orderBy string) {
	desc := strings.HasPrefix(orderBy, "-")
	col := strings.TrimPrefix(orderBy, "-")

	sort.SliceStable(rows, func(i, j int) bool {
		if col == "" || col == entity.IDColumn {
			less := rows[i].ID.String() < rows[j].ID.String()
			if desc {
				return !less && rows[i].ID != rows[j].ID
			}
			return less
		}

		a, b := rows[i].Get(col), rows[j].Get(col)
		an, bn := sequence.IsNull(a), sequence.IsNull(b)
		switch {
		case an && bn:
			return rows[i].ID.String() < rows[j].ID.String()
		case an:
			return false
		case bn:
			return true
		}

		c := compare(a, b)
		if c == 0 {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b any) int {
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
