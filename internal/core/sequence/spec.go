package sequence

import (
	"fmt"
	"regexp"

	"seqnum/internal/core/apperror"
)

// Floor yields the minimum permissible value for a Sequence.
type Floor interface {
	Floor(r Record) (int64, error)
}

// StartAt is a constant floor.
type StartAt int64

// Floor implements Floor.
func (s StartAt) Floor(Record) (int64, error) { return int64(s), nil }

// StartAtFunc computes the floor from the record, e.g. per scope.
type StartAtFunc func(r Record) int64

// Floor implements Floor.
func (f StartAtFunc) Floor(r Record) (int64, error) { return f(r), nil }

// Predicate decides whether assignment is skipped for a record.
type Predicate interface {
	Match(r Record) (bool, error)
}

// SkipFunc adapts a plain function to Predicate.
type SkipFunc func(r Record) bool

// Match implements Predicate.
func (f SkipFunc) Match(r Record) (bool, error) { return f(r), nil }

// SelfExclusion selects how a persisted record is left out of its own uniqueness scan.
type SelfExclusion int

const (
	// ExcludeByID skips the row with the record's identity.
	ExcludeByID SelfExclusion = iota

	// ExcludeByValue skips rows whose sequence column equals the record's
	// pre-assignment value. Comparison uses SQL semantics, so a NULL
	// pre-assignment value (the only case where assignment runs) matches no
	// row and the probe accepts the first candidate.
	ExcludeByValue
)

// String implements fmt.Stringer.
func (e SelfExclusion) String() string {
	switch e {
	case ExcludeByValue:
		return "value"
	default:
		return "id"
	}
}

// ParseSelfExclusion parses "id" or "value"; empty means "id".
func ParseSelfExclusion(s string) (SelfExclusion, error) {
	switch s {
	case "", "id":
		return ExcludeByID, nil
	case "value":
		return ExcludeByValue, nil
	}
	return ExcludeByID, apperror.NewConfiguration(fmt.Sprintf("unknown self exclusion %q", s)).
		WithDetail("allowed", []string{"id", "value"})
}

// Spec configures one sequence column on one table.
// Build specs through NewTable: it binds them to the table and fills defaults.
type Spec struct {
	// Column stores the sequence value.
	Column string

	// Scope lists the columns partitioning the table into independent
	// Sequences. Empty means one table-wide Sequence.
	Scope []string

	// StartAt is the floor. Nil takes Config.StartAt.
	StartAt Floor

	// Skip, when it matches, leaves the column unassigned.
	Skip Predicate

	// Exclusion selects how the record is excluded from its own uniqueness scan.
	Exclusion SelfExclusion

	table string
}

// Table returns the name of the table the spec is bound to.
func (s Spec) Table() string {
	return s.table
}

// lookup builds the Sequence selector for r.
func (s Spec) lookup(r Record) Lookup {
	conds := make([]Condition, 0, len(s.Scope))
	for _, col := range s.Scope {
		conds = append(conds, Condition{Column: col, Value: r.Get(col)})
	}
	l := Lookup{Table: s.table, Column: s.Column, Scope: conds}
	if r.Persisted() {
		ex := &Exclusion{Mode: s.Exclusion}
		switch s.Exclusion {
		case ExcludeByValue:
			ex.Value = r.Get(s.Column)
		default:
			ex.ID = r.RecordID()
		}
		l.Exclude = ex
	}
	return l
}

// Config holds defaults applied while a table is being registered.
type Config struct {
	// Column is used by specs that leave Column empty (default "number").
	Column string

	// StartAt is used by specs that leave StartAt nil (default 1).
	StartAt int64
}

// DefaultConfig returns the defaults: column "number", starting at 1.
func DefaultConfig() Config {
	return Config{
		Column:  "number",
		StartAt: 1,
	}
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a table or column name.
func ValidIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// Table is the immutable, ordered list of sequence specs for one table.
type Table struct {
	name  string
	specs []Spec
}

// NewTable registers specs for table in order.
// Defining the same column twice is a configuration error.
func NewTable(name string, cfg Config, specs ...Spec) (*Table, error) {
	if !ValidIdentifier(name) {
		return nil, apperror.NewConfiguration(fmt.Sprintf("invalid table name %q", name))
	}
	if cfg.Column == "" {
		cfg.Column = DefaultConfig().Column
	}

	t := &Table{name: name, specs: make([]Spec, 0, len(specs))}
	seen := make(map[string]struct{}, len(specs))

	for _, spec := range specs {
		if spec.Column == "" {
			spec.Column = cfg.Column
		}
		if !ValidIdentifier(spec.Column) {
			return nil, apperror.NewConfiguration(fmt.Sprintf("invalid sequence column %q", spec.Column)).
				WithDetail("table", name)
		}
		if _, dup := seen[spec.Column]; dup {
			return nil, apperror.NewConfiguration(fmt.Sprintf(
				"sequence column %s.%s is already defined", name, spec.Column)).
				WithDetail("table", name).
				WithDetail("column", spec.Column)
		}
		seen[spec.Column] = struct{}{}

		scope := make([]string, len(spec.Scope))
		copy(scope, spec.Scope)
		for _, col := range scope {
			if !ValidIdentifier(col) {
				return nil, apperror.NewConfiguration(fmt.Sprintf("invalid scope column %q", col)).
					WithDetail("table", name)
			}
			if col == spec.Column {
				return nil, apperror.NewConfiguration(fmt.Sprintf(
					"sequence column %s.%s cannot scope itself", name, col))
			}
		}
		spec.Scope = scope

		if spec.StartAt == nil {
			spec.StartAt = StartAt(cfg.StartAt)
		}
		spec.table = name
		t.specs = append(t.specs, spec)
	}

	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Specs returns the specs in registration order.
func (t *Table) Specs() []Spec {
	out := make([]Spec, len(t.specs))
	copy(out, t.specs)
	return out
}

// Spec returns the spec registered for column.
func (t *Table) Spec(column string) (Spec, bool) {
	for _, s := range t.specs {
		if s.Column == column {
			return s, true
		}
	}
	return Spec{}, false
}

// Columns returns every sequence and scope column, without duplicates.
func (t *Table) Columns() []string {
	var cols []string
	seen := make(map[string]struct{})
	add := func(c string) {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			cols = append(cols, c)
		}
	}
	for _, s := range t.specs {
		add(s.Column)
		for _, c := range s.Scope {
			add(c)
		}
	}
	return cols
}
