package dto

import (
	"math"
	"strconv"

	"seqnum/internal/core/entity"
	"seqnum/internal/domain/records"
)

// RecordRequest carries column values for create and update.
// On update, a column set to null becomes eligible for a new number.
type RecordRequest struct {
	Values map[string]any `json:"values"`
}

// Normalized returns the values with integral JSON numbers as int64.
func (r RecordRequest) Normalized() map[string]any {
	return NormalizeValues(r.Values)
}

// RecordResponse is a row as returned by the API.
type RecordResponse struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// FromRow creates a RecordResponse.
func FromRow(row *entity.Row) RecordResponse {
	values := row.Values
	if values == nil {
		values = map[string]any{}
	}
	return RecordResponse{ID: row.ID.String(), Values: values}
}

// FromRows converts a page of rows.
func FromRows(rows []*entity.Row) []RecordResponse {
	out := make([]RecordResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromRow(r))
	}
	return out
}

// SequenceResponse describes one sequence column.
type SequenceResponse struct {
	Column    string   `json:"column"`
	Scope     []string `json:"scope"`
	Exclusion string   `json:"exclusion"`
}

// TableResponse describes a writable table.
type TableResponse struct {
	Name      string             `json:"name"`
	Columns   []string           `json:"columns"`
	Sequences []SequenceResponse `json:"sequences"`
}

// FromSchema creates a TableResponse.
func FromSchema(s *records.Schema) TableResponse {
	specs := s.Sequences.Specs()
	seqs := make([]SequenceResponse, 0, len(specs))
	for _, spec := range specs {
		scope := spec.Scope
		if scope == nil {
			scope = []string{}
		}
		seqs = append(seqs, SequenceResponse{
			Column:    spec.Column,
			Scope:     scope,
			Exclusion: spec.Exclusion.String(),
		})
	}
	return TableResponse{Name: s.Name, Columns: s.Columns, Sequences: seqs}
}

// NextResponse is the number the next row of a Sequence would get.
type NextResponse struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Value  int64  `json:"value"`
}

// VerifyResponse lists duplicate sequence values.
type VerifyResponse struct {
	OK         bool                `json:"ok"`
	Violations []records.Violation `json:"violations"`
}

// NormalizeValues converts integral float64 values (as decoded from JSON)
// to int64 so they compare equal to stored sequence values.
func NormalizeValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			out[k] = int64(f)
			continue
		}
		out[k] = v
	}
	return out
}

// ParseQueryValue interprets a query string filter value:
// "null" is NULL, integers are int64, anything else a string.
func ParseQueryValue(s string) any {
	if s == "null" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
