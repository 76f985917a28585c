package sequence

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"seqnum/internal/core/apperror"
	"seqnum/pkg/logger"
)

var tracer = otel.Tracer("seqnum/sequence")

// DefaultMaxProbes bounds the linear probe of the uniqueness scan.
const DefaultMaxProbes = 10000

// AssignerConfig configures an Assigner.
type AssignerConfig struct {
	// Reader queries the Sequence. Required.
	Reader Reader

	// Guard protects the read-compute-write section. Required.
	Guard Guard

	// MaxProbes caps the uniqueness probe (default DefaultMaxProbes).
	MaxProbes int
}

// Assigner computes and sets sequence numbers on records about to be written.
type Assigner struct {
	reader    Reader
	guard     Guard
	maxProbes int
}

// NewAssigner creates an Assigner.
func NewAssigner(cfg AssignerConfig) *Assigner {
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = DefaultMaxProbes
	}
	return &Assigner{
		reader:    cfg.Reader,
		guard:     cfg.Guard,
		maxProbes: cfg.MaxProbes,
	}
}

// Guard returns the guard the Assigner acquires.
func (a *Assigner) Guard() Guard {
	return a.guard
}

// Assign sets the next number of spec's Sequence on r.
// It is a no-op when the column already holds a value or the skip predicate matches.
// On error the column is left unset.
func (a *Assigner) Assign(ctx context.Context, r Record, spec Spec) error {
	if spec.table == "" {
		return apperror.NewConfiguration(fmt.Sprintf("sequence column %q is not registered on a table", spec.Column))
	}
	if !IsNull(r.Get(spec.Column)) {
		return nil
	}
	if spec.Skip != nil {
		skip, err := spec.Skip.Match(r)
		if err != nil {
			return fmt.Errorf("evaluate skip for %s.%s: %w", spec.table, spec.Column, err)
		}
		if skip {
			return nil
		}
	}

	ctx, span := tracer.Start(ctx, "sequence.assign",
		trace.WithAttributes(
			attribute.String("sequence.table", spec.table),
			attribute.String("sequence.column", spec.Column),
		))
	defer span.End()

	if err := a.guard.Acquire(ctx, spec.table); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "guard")
		return err
	}

	next, err := a.next(ctx, r, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "next")
		return err
	}

	r.Set(spec.Column, next)
	span.SetAttributes(attribute.Int64("sequence.value", next))

	logger.Debug(ctx, "sequence number assigned",
		"table", spec.table,
		"column", spec.Column,
		"value", next,
	)
	return nil
}

// AssignAll runs Assign for every spec of t in registration order and returns
// the columns it set. If any spec fails, columns set so far are reset.
func (a *Assigner) AssignAll(ctx context.Context, t *Table, r Record) ([]string, error) {
	var assigned []string
	for _, spec := range t.specs {
		wasNull := IsNull(r.Get(spec.Column))
		if err := a.Assign(ctx, r, spec); err != nil {
			Reset(r, assigned)
			return nil, err
		}
		if wasNull && !IsNull(r.Get(spec.Column)) {
			assigned = append(assigned, spec.Column)
		}
	}
	return assigned, nil
}

// Peek computes the number Assign would choose, without the guard and
// without touching r. Concurrent writers may take the value first.
func (a *Assigner) Peek(ctx context.Context, r Record, spec Spec) (int64, error) {
	if spec.table == "" {
		return 0, apperror.NewConfiguration(fmt.Sprintf("sequence column %q is not registered on a table", spec.Column))
	}
	return a.next(ctx, r, spec)
}

// next evaluates the floor, finds the predecessor and probes for a free value.
func (a *Assigner) next(ctx context.Context, r Record, spec Spec) (int64, error) {
	floor, err := spec.StartAt.Floor(r)
	if err != nil {
		return 0, fmt.Errorf("evaluate start_at for %s.%s: %w", spec.table, spec.Column, err)
	}

	l := spec.lookup(r)

	last, found, err := a.reader.LastValue(ctx, l)
	if err != nil {
		return 0, fmt.Errorf("find predecessor in %s.%s: %w", spec.table, spec.Column, err)
	}

	candidate := floor
	if found {
		if last == math.MaxInt64 {
			return 0, a.exhausted(spec, floor, last)
		}
		if last+1 > floor {
			candidate = last + 1
		}
	}

	for probes := 0; probes < a.maxProbes; probes++ {
		taken, err := a.reader.Taken(ctx, l, candidate)
		if err != nil {
			return 0, fmt.Errorf("check %s.%s = %d: %w", spec.table, spec.Column, candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		if candidate == math.MaxInt64 {
			break
		}
		candidate++
	}

	return 0, a.exhausted(spec, floor, candidate)
}

func (a *Assigner) exhausted(spec Spec, floor, candidate int64) error {
	return apperror.NewDataIntegrity(fmt.Sprintf(
		"no free value in %s.%s after %d probes", spec.table, spec.Column, a.maxProbes)).
		WithDetail("table", spec.table).
		WithDetail("column", spec.Column).
		WithDetail("scope", spec.Scope).
		WithDetail("floor", floor).
		WithDetail("last_candidate", candidate)
}
