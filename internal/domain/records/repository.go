package records

import (
	"context"

	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/core/tx"
)

// ListFilter contains filtering options for list operations.
type ListFilter struct {
	// Where filters by column equality. A nil value matches NULL.
	Where map[string]any

	// OrderBy specifies sorting (e.g., "number", "-number"). Empty sorts by id.
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50}
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*entity.Row `json:"items"`
	TotalCount int64         `json:"totalCount"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`
}

// Duplicate is a sequence value used by more than one row of a Sequence.
type Duplicate struct {
	Scope map[string]any `json:"scope"`
	Value int64          `json:"value"`
	Count int64          `json:"count"`
}

// Repository persists rows of configured tables.
// Every method reads and writes through the transaction carried by ctx.
type Repository interface {
	// Insert writes a new row. A unique violation is reported as apperror.CodeDuplicate.
	Insert(ctx context.Context, schema *Schema, row *entity.Row) error

	// Update overwrites the row's values.
	Update(ctx context.Context, schema *Schema, row *entity.Row) error

	// GetByID loads a row; missing rows are apperror.CodeNotFound.
	GetByID(ctx context.Context, schema *Schema, rowID id.ID) (*entity.Row, error)

	// List returns a page of rows and the total count matching the filter.
	List(ctx context.Context, schema *Schema, filter ListFilter) (ListResult, error)

	// Delete removes a row physically.
	Delete(ctx context.Context, schema *Schema, rowID id.ID) error

	// Duplicates lists values of spec's column used more than once per Sequence.
	Duplicates(ctx context.Context, schema *Schema, spec sequence.Spec) ([]Duplicate, error)
}

// Store is everything the records service needs from a backend.
// Stores that also implement sequence.Locker get the table lock guard.
type Store interface {
	Repository
	sequence.Reader
	tx.Manager
}

// AuditSink records assigned numbers inside the write transaction.
type AuditSink interface {
	RecordAssignments(ctx context.Context, schema *Schema, row *entity.Row, columns []string) error
}
