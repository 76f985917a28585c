// Package records provides the write path for sequenced tables: validation,
// application hooks, sequence assignment under the table's guard, persistence.
package records

import (
	"fmt"
	"sort"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/entity"
	"seqnum/internal/core/sequence"
)

// Schema describes one writable table.
type Schema struct {
	// Name is the table name.
	Name string

	// Columns lists the writable columns, id excluded. Sequence and scope
	// columns are always included.
	Columns []string

	// Sequences holds the table's sequence specs. Never nil.
	Sequences *sequence.Table

	allowed map[string]struct{}
}

// NewSchema builds a schema. seq may be nil for a table without sequences.
func NewSchema(name string, columns []string, seq *sequence.Table) (*Schema, error) {
	if !sequence.ValidIdentifier(name) {
		return nil, apperror.NewConfiguration(fmt.Sprintf("invalid table name %q", name))
	}
	if seq == nil {
		var err error
		if seq, err = sequence.NewTable(name, sequence.DefaultConfig()); err != nil {
			return nil, err
		}
	}
	if seq.Name() != name {
		return nil, apperror.NewConfiguration(fmt.Sprintf(
			"sequences registered for %q attached to table %q", seq.Name(), name))
	}

	s := &Schema{Name: name, Sequences: seq, allowed: make(map[string]struct{})}
	add := func(col string) error {
		if col == entity.IDColumn {
			return apperror.NewConfiguration(fmt.Sprintf("column %s.id is implicit", name))
		}
		if !sequence.ValidIdentifier(col) {
			return apperror.NewConfiguration(fmt.Sprintf("invalid column name %q", col)).
				WithDetail("table", name)
		}
		if _, ok := s.allowed[col]; ok {
			return nil
		}
		s.allowed[col] = struct{}{}
		s.Columns = append(s.Columns, col)
		return nil
	}

	for _, col := range columns {
		if err := add(col); err != nil {
			return nil, err
		}
	}
	for _, col := range seq.Columns() {
		if err := add(col); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// HasColumn reports whether col is a writable column.
func (s *Schema) HasColumn(col string) bool {
	_, ok := s.allowed[col]
	return ok
}

// CheckColumns rejects values for columns the schema does not declare.
func (s *Schema) CheckColumns(values map[string]any) error {
	for col := range values {
		if !s.HasColumn(col) {
			return apperror.NewValidation(fmt.Sprintf("unknown column %s.%s", s.Name, col)).
				WithDetail("field", col)
		}
	}
	return nil
}

// Registry holds the configured schemas by table name.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry indexes schemas. Registering a table twice is a configuration error.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if _, dup := r.schemas[s.Name]; dup {
			return nil, apperror.NewConfiguration(fmt.Sprintf("table %q is defined twice", s.Name))
		}
		r.schemas[s.Name] = s
	}
	return r, nil
}

// Get returns the schema for table.
func (r *Registry) Get(table string) (*Schema, error) {
	s, ok := r.schemas[table]
	if !ok {
		return nil, apperror.NewNotFound("table", table)
	}
	return s, nil
}

// All returns the schemas sorted by name.
func (r *Registry) All() []*Schema {
	out := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
