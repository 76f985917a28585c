package entity

import (
	"fmt"
	"reflect"
	"sync"

	"seqnum/internal/core/id"
)

// ExtractDBColumns extracts all column names from struct "db" tags.
// It handles embedded structs recursively.
//
// Usage:
//
//	columns := ExtractDBColumns[Answer]()
//	// Returns: ["id", "question_id", "number", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := getOrCreateTypeMetadata(reflect.TypeOf(zero))
	return meta.columns
}

// typeMetadata contains cached reflection metadata for a type.
type typeMetadata struct {
	columns []string
	index   map[string][]int // db tag -> field index path
}

// Global cache for type metadata (thread-safe).
var typeCache sync.Map // map[reflect.Type]*typeMetadata

// getOrCreateTypeMetadata returns cached metadata or creates it if not exists.
func getOrCreateTypeMetadata(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{index: make(map[string][]int)}
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, meta)
	}

	typeCache.Store(t, meta)
	return meta
}

func collectFields(t reflect.Type, prefix []int, meta *typeMetadata) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		path := append(append([]int{}, prefix...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, path, meta)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}
		if _, dup := meta.index[tag]; dup {
			continue
		}
		meta.columns = append(meta.columns, tag)
		meta.index[tag] = path
	}
}

// StructRecord lets a typed struct take part in sequence assignment.
// Nullable columns (including every sequence column) must be pointer fields:
// a nil pointer is NULL, and only NULL columns get a number.
type StructRecord struct {
	v         reflect.Value
	meta      *typeMetadata
	persisted bool
}

// Bind wraps a pointer to a struct with "db" tags. The struct must have an
// "id" column of type id.ID.
func Bind(ptr any, persisted bool) (*StructRecord, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("bind: expected non-nil pointer to struct, got %T", ptr)
	}

	meta := getOrCreateTypeMetadata(rv.Type())
	path, ok := meta.index[IDColumn]
	if !ok {
		return nil, fmt.Errorf("bind: %T has no field tagged db:\"id\"", ptr)
	}
	if rv.Elem().FieldByIndex(path).Type() != reflect.TypeOf(id.ID{}) {
		return nil, fmt.Errorf("bind: %T id field must be id.ID", ptr)
	}

	return &StructRecord{v: rv.Elem(), meta: meta, persisted: persisted}, nil
}

// RecordID returns the struct's id field.
func (s *StructRecord) RecordID() id.ID {
	return s.v.FieldByIndex(s.meta.index[IDColumn]).Interface().(id.ID)
}

// Persisted reports the state given to Bind.
func (s *StructRecord) Persisted() bool {
	return s.persisted
}

// Get returns the field tagged column; nil pointers read as nil.
func (s *StructRecord) Get(column string) any {
	path, ok := s.meta.index[column]
	if !ok {
		return nil
	}
	f := s.v.FieldByIndex(path)
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return nil
		}
		return f.Elem().Interface()
	}
	return f.Interface()
}

// Set writes value into the field tagged column, converting numeric types.
// Setting an unknown column is a no-op; an inconvertible value panics.
func (s *StructRecord) Set(column string, value any) {
	path, ok := s.meta.index[column]
	if !ok {
		return
	}
	f := s.v.FieldByIndex(path)

	if value == nil {
		f.Set(reflect.Zero(f.Type()))
		return
	}

	target := f.Type()
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	rv := reflect.ValueOf(value)
	if !rv.Type().ConvertibleTo(target) {
		panic(fmt.Sprintf("entity: cannot set column %s (%s) from %T", column, target, value))
	}
	converted := rv.Convert(target)

	if f.Kind() == reflect.Ptr {
		p := reflect.New(target)
		p.Elem().Set(converted)
		f.Set(p)
		return
	}
	f.Set(converted)
}

// ToMap converts the bound struct to a column map (pointer fields dereferenced).
func (s *StructRecord) ToMap() map[string]any {
	res := make(map[string]any, len(s.meta.columns))
	for _, col := range s.meta.columns {
		res[col] = s.Get(col)
	}
	return res
}

// ToRow converts the bound struct to a Row with the same identity and state.
func (s *StructRecord) ToRow() *Row {
	values := s.ToMap()
	delete(values, IDColumn)
	return &Row{ID: s.RecordID(), Values: values, persisted: s.persisted}
}
