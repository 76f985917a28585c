package records

import (
	"context"
	"fmt"
	"strings"

	"seqnum/internal/core/apperror"
	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/pkg/logger"
)

// ServiceConfig configures the records service.
type ServiceConfig struct {
	Store    Store
	Registry *Registry

	// Guard overrides the strategy picked from the store's capabilities.
	Guard sequence.Guard

	// MaxProbes bounds the uniqueness probe (default sequence.DefaultMaxProbes).
	MaxProbes int

	// Audit is optional.
	Audit AuditSink
}

// Service writes rows of configured tables and assigns their sequence numbers.
type Service struct {
	store    Store
	registry *Registry
	assigner *sequence.Assigner
	hooks    *HookRegistry
	audit    AuditSink
}

// NewService creates a new records service.
func NewService(cfg ServiceConfig) *Service {
	guard := cfg.Guard
	if guard == nil {
		guard = sequence.GuardFor(cfg.Store, sequence.DefaultRetryConfig())
	}
	return &Service{
		store:    cfg.Store,
		registry: cfg.Registry,
		assigner: sequence.NewAssigner(sequence.AssignerConfig{
			Reader:    cfg.Store,
			Guard:     guard,
			MaxProbes: cfg.MaxProbes,
		}),
		hooks: NewHookRegistry(),
		audit: cfg.Audit,
	}
}

// Hooks returns the hook registry for external registration.
func (s *Service) Hooks() *HookRegistry {
	return s.hooks
}

// Assigner returns the sequence assigner used on the write path.
func (s *Service) Assigner() *sequence.Assigner {
	return s.assigner
}

// Schema returns the schema of table.
func (s *Service) Schema(table string) (*Schema, error) {
	return s.registry.Get(table)
}

// Tables returns every configured schema.
func (s *Service) Tables() []*Schema {
	return s.registry.All()
}

// Create inserts a new row into table, assigning its sequence numbers.
func (s *Service) Create(ctx context.Context, table string, values map[string]any) (*entity.Row, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return nil, err
	}
	row := entity.NewRow(values)
	if err := s.Save(ctx, schema, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Update merges values into an existing row and saves it.
// Setting a sequence column to nil makes it eligible for a new number.
func (s *Service) Update(ctx context.Context, table string, rowID id.ID, values map[string]any) (*entity.Row, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return nil, err
	}
	if err := schema.CheckColumns(values); err != nil {
		return nil, err
	}

	var row *entity.Row
	err = s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetByID(ctx, schema, rowID)
		if err != nil {
			return normalizeGetErr(err, schema.Name, rowID)
		}
		for col, v := range values {
			existing.Set(col, v)
		}
		row = existing
		return s.Save(ctx, schema, existing)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Save is the write hook: it inserts or updates row in one transaction,
// assigning every NULL sequence column under the table's guard first.
// On failure the columns it assigned are cleared again.
func (s *Service) Save(ctx context.Context, schema *Schema, row *entity.Row) error {
	if err := row.Validate(ctx); err != nil {
		return err
	}
	if err := schema.CheckColumns(row.Values); err != nil {
		return err
	}

	var assigned []string
	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.hooks.Run(ctx, BeforeSave, schema, row); err != nil {
			return err
		}
		return s.assigner.Guard().Run(ctx, schema.Name, func(ctx context.Context) error {
			cols, err := s.assigner.AssignAll(ctx, schema.Sequences, row)
			if err != nil {
				return err
			}
			if err := s.persist(ctx, schema, row, cols); err != nil {
				if len(cols) == 0 {
					// Nothing was assigned, so a retry would write the same row.
					return sequence.Final(err)
				}
				sequence.Reset(row, cols)
				return err
			}
			assigned = cols
			return nil
		})
	})
	if err != nil {
		sequence.Reset(row, assigned)
		return err
	}

	row.MarkPersisted()
	if len(assigned) > 0 {
		logger.Debug(ctx, "record saved",
			"table", schema.Name,
			"id", row.ID.String(),
			"assigned", strings.Join(assigned, ","),
		)
	}
	return nil
}

// SaveStruct saves a struct with "db" tags (see entity.Bind) into table and
// copies the assigned sequence numbers back into its fields.
func (s *Service) SaveStruct(ctx context.Context, table string, ptr any, persisted bool) error {
	schema, err := s.registry.Get(table)
	if err != nil {
		return err
	}
	rec, err := entity.Bind(ptr, persisted)
	if err != nil {
		return apperror.NewValidation(err.Error())
	}

	row := rec.ToRow()
	if err := s.Save(ctx, schema, row); err != nil {
		return err
	}
	for _, spec := range schema.Sequences.Specs() {
		rec.Set(spec.Column, row.Get(spec.Column))
	}
	return nil
}

func (s *Service) persist(ctx context.Context, schema *Schema, row *entity.Row, assigned []string) error {
	var err error
	if row.Persisted() {
		err = s.store.Update(ctx, schema, row)
	} else {
		err = s.store.Insert(ctx, schema, row)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", schema.Name, err)
	}

	if s.audit != nil && len(assigned) > 0 {
		if err := s.audit.RecordAssignments(ctx, schema, row, assigned); err != nil {
			return fmt.Errorf("audit %s: %w", schema.Name, err)
		}
	}

	return s.hooks.Run(ctx, AfterSave, schema, row)
}

// Get retrieves a row by id.
func (s *Service) Get(ctx context.Context, table string, rowID id.ID) (*entity.Row, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return nil, err
	}
	row, err := s.store.GetByID(ctx, schema, rowID)
	if err != nil {
		return nil, normalizeGetErr(err, schema.Name, rowID)
	}
	return row, nil
}

// List retrieves rows with filtering and pagination.
func (s *Service) List(ctx context.Context, table string, filter ListFilter) (ListResult, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return ListResult{}, err
	}
	for col := range filter.Where {
		if col != entity.IDColumn && !schema.HasColumn(col) {
			return ListResult{}, apperror.NewValidation(fmt.Sprintf("cannot filter by unknown column %q", col)).
				WithDetail("field", col)
		}
	}
	if order := strings.TrimPrefix(filter.OrderBy, "-"); order != "" && order != entity.IDColumn && !schema.HasColumn(order) {
		return ListResult{}, apperror.NewValidation(fmt.Sprintf("cannot order by unknown column %q", order)).
			WithDetail("field", "orderBy")
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListFilter().Limit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.List(ctx, schema, filter)
}

// Delete removes a row. Its number is not reused unless it was the highest
// in its Sequence.
func (s *Service) Delete(ctx context.Context, table string, rowID id.ID) error {
	schema, err := s.registry.Get(table)
	if err != nil {
		return err
	}
	return s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		row, err := s.store.GetByID(ctx, schema, rowID)
		if err != nil {
			return normalizeGetErr(err, schema.Name, rowID)
		}
		if err := s.hooks.Run(ctx, BeforeDelete, schema, row); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, schema, rowID); err != nil {
			return fmt.Errorf("delete %s: %w", schema.Name, err)
		}
		return s.hooks.Run(ctx, AfterDelete, schema, row)
	})
}

// Next returns the number the next row with the given scope values would get.
// The value is advisory: nothing is locked or reserved.
func (s *Service) Next(ctx context.Context, table, column string, values map[string]any) (int64, error) {
	schema, err := s.registry.Get(table)
	if err != nil {
		return 0, err
	}
	spec, ok := schema.Sequences.Spec(column)
	if !ok {
		return 0, apperror.NewNotFound("sequence", table+"."+column)
	}
	return s.assigner.Peek(ctx, entity.NewRow(values), spec)
}

// Violation is a duplicate found by Verify.
type Violation struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Duplicate
}

// Verify scans every sequence of table (all tables when empty) for values
// used more than once within a Sequence.
func (s *Service) Verify(ctx context.Context, table string) ([]Violation, error) {
	schemas := s.registry.All()
	if table != "" {
		schema, err := s.registry.Get(table)
		if err != nil {
			return nil, err
		}
		schemas = []*Schema{schema}
	}

	var out []Violation
	for _, schema := range schemas {
		for _, spec := range schema.Sequences.Specs() {
			dups, err := s.store.Duplicates(ctx, schema, spec)
			if err != nil {
				return nil, fmt.Errorf("verify %s.%s: %w", schema.Name, spec.Column, err)
			}
			for _, d := range dups {
				out = append(out, Violation{Table: schema.Name, Column: spec.Column, Duplicate: d})
			}
		}
	}
	if len(out) > 0 {
		logger.Warn(ctx, "duplicate sequence values found", "count", len(out))
	}
	return out, nil
}

func normalizeGetErr(err error, table string, rowID id.ID) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound(table, rowID.String())
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err).WithDetail("entity", table).WithDetail("id", rowID.String())
}
