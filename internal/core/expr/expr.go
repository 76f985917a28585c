// Package expr compiles CEL expressions used by declarative sequence
// definitions: computed start values and skip predicates.
//
// Expressions see the row as the map variable "record", keyed by column name:
//
//	record.question_id == "special" ? 100 : 1
//	record.kind == "draft"
package expr

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
)

// RecordVar is the variable holding the row in every expression.
const RecordVar = "record"

// costLimit bounds evaluation work per expression.
const costLimit = 10000

// Env compiles expressions against the record map.
type Env struct {
	env *cel.Env
}

// NewEnv creates the CEL environment.
func NewEnv() (*Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(RecordVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &Env{env: env}, nil
}

// Floor compiles src into a sequence.Floor. src must yield an int.
// columns lists the record columns exposed to the expression.
func (e *Env) Floor(src string, columns []string) (sequence.Floor, error) {
	prg, err := e.compile(src, types.IntKind, types.UintKind)
	if err != nil {
		return nil, err
	}
	return &floor{program: program{src: src, prg: prg, columns: columns}}, nil
}

// Predicate compiles src into a sequence.Predicate. src must yield a bool.
func (e *Env) Predicate(src string, columns []string) (sequence.Predicate, error) {
	prg, err := e.compile(src, types.BoolKind)
	if err != nil {
		return nil, err
	}
	return &predicate{program: program{src: src, prg: prg, columns: columns}}, nil
}

func (e *Env) compile(src string, want ...types.Kind) (cel.Program, error) {
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewConfiguration(fmt.Sprintf("invalid expression: %v", iss.Err())).
			WithDetail("expression", src)
	}

	kind := ast.OutputType().Kind()
	ok := kind == types.DynKind || kind == types.AnyKind
	for _, k := range want {
		ok = ok || kind == k
	}
	if !ok {
		return nil, apperror.NewConfiguration(fmt.Sprintf(
			"expression yields %s", ast.OutputType())).
			WithDetail("expression", src)
	}

	prg, err := e.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, apperror.NewConfiguration(fmt.Sprintf("invalid expression: %v", err)).
			WithDetail("expression", src)
	}
	return prg, nil
}

type program struct {
	src     string
	prg     cel.Program
	columns []string
}

func (p program) eval(r sequence.Record) (ref.Val, error) {
	rec := make(map[string]any, len(p.columns)+1)
	for _, col := range p.columns {
		rec[col] = native(r.Get(col))
	}
	rec["id"] = r.RecordID().String()

	out, _, err := p.prg.Eval(map[string]any{RecordVar: rec})
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", p.src, err)
	}
	return out, nil
}

type floor struct{ program }

// Floor implements sequence.Floor.
func (f *floor) Floor(r sequence.Record) (int64, error) {
	out, err := f.eval(r)
	if err != nil {
		return 0, err
	}
	switch v := out.Value().(type) {
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("eval %q: %d overflows int64", f.src, v)
		}
		return int64(v), nil
	}
	return 0, fmt.Errorf("eval %q: expected int, got %s", f.src, out.Type())
}

type predicate struct{ program }

// Match implements sequence.Predicate.
func (p *predicate) Match(r sequence.Record) (bool, error) {
	out, err := p.eval(r)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: expected bool, got %s", p.src, out.Type())
	}
	return b, nil
}

// native converts values CEL cannot adapt into ones it can.
func native(v any) any {
	switch n := v.(type) {
	case id.ID:
		return n.String()
	case int:
		return int64(n)
	}
	if sequence.IsNull(v) {
		return nil
	}
	if n, ok := sequence.Int64(v); ok {
		if _, isFloat := v.(float64); !isFloat {
			return n
		}
	}
	return v
}
