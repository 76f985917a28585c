package records

import (
	"context"

	"seqnum/internal/core/entity"
)

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	// BeforeSave runs inside the transaction, before sequence assignment,
	// so hooks can fill scope columns or set numbers explicitly.
	BeforeSave HookEvent = "before_save"
	// AfterSave runs inside the transaction after the row is written.
	AfterSave    HookEvent = "after_save"
	BeforeDelete HookEvent = "before_delete"
	AfterDelete  HookEvent = "after_delete"
)

// Hook is a function that runs at specific lifecycle points.
type Hook func(ctx context.Context, schema *Schema, row *entity.Row) error

// HookRegistry stores lifecycle hooks, globally or per table.
type HookRegistry struct {
	hooks map[HookEvent][]tableHook
}

type tableHook struct {
	table string
	fn    Hook
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[HookEvent][]tableHook),
	}
}

// On registers a hook for every table.
func (r *HookRegistry) On(event HookEvent, hook Hook) {
	r.OnTable(event, "", hook)
}

// OnTable registers a hook for one table.
func (r *HookRegistry) OnTable(event HookEvent, table string, hook Hook) {
	r.hooks[event] = append(r.hooks[event], tableHook{table: table, fn: hook})
}

// Run executes all hooks for the specified event in registration order.
func (r *HookRegistry) Run(ctx context.Context, event HookEvent, schema *Schema, row *entity.Row) error {
	for _, h := range r.hooks[event] {
		if h.table != "" && h.table != schema.Name {
			continue
		}
		if err := h.fn(ctx, schema, row); err != nil {
			return err
		}
	}
	return nil
}
