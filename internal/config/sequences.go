// Package config loads sequence definitions from YAML:
//
//	defaults:
//	  column: number
//	  start_at: 1
//	tables:
//	  - name: answers
//	    columns: [body, kind]
//	    sequences:
//	      - scope: [question_id]
//	        start_at: 'record.question_id == "special" ? 100 : 1'
//	        skip: 'record.kind == "draft"'
//	        exclusion: id
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/expr"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
)

// File is the top-level shape of a sequences file.
type File struct {
	Defaults Defaults      `yaml:"defaults"`
	Tables   []TableConfig `yaml:"tables"`
}

// Defaults apply to every sequence that leaves the field empty.
type Defaults struct {
	Column  string `yaml:"column,omitempty"`
	StartAt *int64 `yaml:"start_at,omitempty"`
}

// TableConfig declares one writable table.
type TableConfig struct {
	Name      string           `yaml:"name"`
	Columns   []string         `yaml:"columns,omitempty"`
	Sequences []SequenceConfig `yaml:"sequences,omitempty"`
}

// SequenceConfig declares one sequence column.
type SequenceConfig struct {
	Column    string   `yaml:"column,omitempty"`
	Scope     []string `yaml:"scope,omitempty"`
	StartAt   StartAt  `yaml:"start_at,omitempty"`
	Skip      string   `yaml:"skip,omitempty"`
	Exclusion string   `yaml:"exclusion,omitempty"`
}

// StartAt is either an integer or a CEL expression yielding one.
type StartAt struct {
	Value *int64
	Expr  string
}

// IsZero lets yaml omit an unset StartAt.
func (s StartAt) IsZero() bool {
	return s.Value == nil && s.Expr == ""
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StartAt) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: start_at must be an integer or an expression", node.Line)
	}
	if node.ShortTag() == "!!int" {
		v, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("line %d: start_at: %w", node.Line, err)
		}
		s.Value = &v
		return nil
	}
	s.Expr = strings.TrimSpace(node.Value)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s StartAt) MarshalYAML() (any, error) {
	if s.Value != nil {
		return *s.Value, nil
	}
	return s.Expr, nil
}

// Load reads and parses the sequences file at path.
func Load(path string) (*File, error) {
	// #nosec G304 -- path comes from the operator's configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sequences config %q: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a sequences file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, apperror.NewConfiguration(fmt.Sprintf("parse sequences config: %v", err)).WithCause(err)
	}
	return &f, nil
}

// sequenceConfig resolves the file defaults into a sequence.Config.
func (f *File) sequenceConfig() sequence.Config {
	cfg := sequence.DefaultConfig()
	if f.Defaults.Column != "" {
		cfg.Column = f.Defaults.Column
	}
	if f.Defaults.StartAt != nil {
		cfg.StartAt = *f.Defaults.StartAt
	}
	return cfg
}

// Build compiles every table into a schema. Expressions are compiled with env.
func (f *File) Build(env *expr.Env) ([]*records.Schema, error) {
	cfg := f.sequenceConfig()

	schemas := make([]*records.Schema, 0, len(f.Tables))
	for _, tc := range f.Tables {
		schema, err := tc.build(env, cfg)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

// Registry builds the schemas and indexes them by table name.
func (f *File) Registry(env *expr.Env) (*records.Registry, error) {
	schemas, err := f.Build(env)
	if err != nil {
		return nil, err
	}
	return records.NewRegistry(schemas...)
}

func (tc TableConfig) build(env *expr.Env, cfg sequence.Config) (*records.Schema, error) {
	// Expressions may read any column of the table.
	visible := append([]string{}, tc.Columns...)
	for _, sc := range tc.Sequences {
		col := sc.Column
		if col == "" {
			col = cfg.Column
		}
		visible = append(visible, col)
		visible = append(visible, sc.Scope...)
	}

	specs := make([]sequence.Spec, 0, len(tc.Sequences))
	for _, sc := range tc.Sequences {
		spec, err := sc.spec(env, visible)
		if err != nil {
			return nil, withTable(err, tc.Name)
		}
		specs = append(specs, spec)
	}

	seq, err := sequence.NewTable(tc.Name, cfg, specs...)
	if err != nil {
		return nil, err
	}
	return records.NewSchema(tc.Name, tc.Columns, seq)
}

func (sc SequenceConfig) spec(env *expr.Env, visible []string) (sequence.Spec, error) {
	exclusion, err := sequence.ParseSelfExclusion(sc.Exclusion)
	if err != nil {
		return sequence.Spec{}, err
	}
	spec := sequence.Spec{
		Column:    sc.Column,
		Scope:     sc.Scope,
		Exclusion: exclusion,
	}

	switch {
	case sc.StartAt.Value != nil:
		spec.StartAt = sequence.StartAt(*sc.StartAt.Value)
	case sc.StartAt.Expr != "":
		if env == nil {
			return spec, apperror.NewConfiguration("start_at expression requires an expression environment")
		}
		if spec.StartAt, err = env.Floor(sc.StartAt.Expr, visible); err != nil {
			return spec, err
		}
	}

	if sc.Skip != "" {
		if env == nil {
			return spec, apperror.NewConfiguration("skip expression requires an expression environment")
		}
		if spec.Skip, err = env.Predicate(sc.Skip, visible); err != nil {
			return spec, err
		}
	}
	return spec, nil
}

func withTable(err error, table string) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("table", table)
	}
	return fmt.Errorf("table %s: %w", table, err)
}
