package sequence

import (
	"context"

	"seqnum/internal/core/id"
)

// Condition pins one scope column to the record's value. A nil value matches NULL.
type Condition struct {
	Column string
	Value  any
}

// Exclusion leaves the record under assignment out of its own uniqueness scan.
type Exclusion struct {
	Mode  SelfExclusion
	ID    id.ID
	Value any
}

// Lookup selects one Sequence: a table, its sequence column and the scope values.
type Lookup struct {
	Table   string
	Column  string
	Scope   []Condition
	Exclude *Exclusion
}

// Reader is the persistence port consumed by the Assigner.
// Implementations must read through the transaction carried by ctx.
type Reader interface {
	// LastValue returns the highest non-null value in the Sequence.
	// found is false for an empty Sequence.
	LastValue(ctx context.Context, l Lookup) (value int64, found bool, err error)

	// Taken reports whether value is already used in the Sequence,
	// ignoring the row described by l.Exclude.
	Taken(ctx context.Context, l Lookup, value int64) (bool, error)
}

// Locker is the optional capability of taking an exclusive lock on a table,
// held until the transaction carried by ctx ends.
// Acquiring a lock the transaction already holds must succeed immediately.
type Locker interface {
	LockTable(ctx context.Context, table string) error
}
