// Package sqlbuild builds the SQL shared by the relational stores with
// squirrel. Table and column names come from validated schemas.
package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"seqnum/internal/core/entity"
	"seqnum/internal/core/id"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/records"
)

// CountColumn aliases the group size in duplicate queries.
const CountColumn = "dup_count"

// Dialect adapts queries to one database.
type Dialect struct {
	Placeholder squirrel.PlaceholderFormat

	// ID converts a row id into a driver argument.
	ID func(id.ID) any
}

// Postgres uses $n placeholders and native uuid values.
var Postgres = Dialect{
	Placeholder: squirrel.Dollar,
	ID:          func(v id.ID) any { return v },
}

// SQLite uses ? placeholders and text ids.
var SQLite = Dialect{
	Placeholder: squirrel.Question,
	ID:          func(v id.ID) any { return v.String() },
}

// Builder returns a new squirrel builder with the dialect's placeholder format.
func (d Dialect) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

func whereScope(q squirrel.SelectBuilder, scope []sequence.Condition) squirrel.SelectBuilder {
	if len(scope) == 0 {
		return q
	}
	eq := make(squirrel.Eq, len(scope))
	for _, c := range scope {
		eq[c.Column] = c.Value
	}
	return q.Where(eq)
}

// LastValue selects the highest non-null value of the Sequence.
func (d Dialect) LastValue(l sequence.Lookup) squirrel.SelectBuilder {
	q := d.Builder().
		Select(l.Column).
		From(l.Table)
	return whereScope(q, l.Scope).
		Where(squirrel.NotEq{l.Column: nil}).
		OrderBy(l.Column + " DESC").
		Limit(1)
}

// Taken selects one row of the Sequence holding value, minus the excluded row.
func (d Dialect) Taken(l sequence.Lookup, value int64) squirrel.SelectBuilder {
	q := d.Builder().
		Select("1").
		From(l.Table)
	q = whereScope(q, l.Scope).
		Where(squirrel.Eq{l.Column: value})

	if ex := l.Exclude; ex != nil {
		switch ex.Mode {
		case sequence.ExcludeByValue:
			q = q.Where(squirrel.Expr("NOT ("+l.Column+" = ?)", ex.Value))
		default:
			q = q.Where(squirrel.NotEq{entity.IDColumn: d.ID(ex.ID)})
		}
	}
	return q.Limit(1)
}

// Insert writes a row with the columns it carries.
func (d Dialect) Insert(schema *records.Schema, row *entity.Row) squirrel.InsertBuilder {
	data := make(map[string]any, len(row.Values)+1)
	data[entity.IDColumn] = d.ID(row.ID)
	for col, v := range row.Values {
		if schema.HasColumn(col) {
			data[col] = v
		}
	}
	return d.Builder().Insert(schema.Name).SetMap(data)
}

// Update overwrites the columns a row carries.
func (d Dialect) Update(schema *records.Schema, row *entity.Row) squirrel.UpdateBuilder {
	data := make(map[string]any, len(row.Values))
	for col, v := range row.Values {
		if schema.HasColumn(col) {
			data[col] = v
		}
	}
	return d.Builder().
		Update(schema.Name).
		SetMap(data).
		Where(squirrel.Eq{entity.IDColumn: d.ID(row.ID)})
}

// SelectColumns returns id followed by the schema columns.
func SelectColumns(schema *records.Schema) []string {
	return append([]string{entity.IDColumn}, schema.Columns...)
}

// GetByID selects one row.
func (d Dialect) GetByID(schema *records.Schema, rowID id.ID) squirrel.SelectBuilder {
	return d.Builder().
		Select(SelectColumns(schema)...).
		From(schema.Name).
		Where(squirrel.Eq{entity.IDColumn: d.ID(rowID)}).
		Limit(1)
}

// List builds the page query and the matching count query.
func (d Dialect) List(schema *records.Schema, filter records.ListFilter) (page, count squirrel.SelectBuilder, err error) {
	where := squirrel.Eq{}
	for col, v := range filter.Where {
		if col != entity.IDColumn && !schema.HasColumn(col) {
			return page, count, fmt.Errorf("invalid filter column: %s", col)
		}
		if rowID, ok := v.(id.ID); ok {
			v = d.ID(rowID)
		}
		where[col] = v
	}

	orderBy, err := ParseOrderBy(schema, filter.OrderBy)
	if err != nil {
		return page, count, err
	}

	page = d.Builder().
		Select(SelectColumns(schema)...).
		From(schema.Name)
	count = d.Builder().
		Select("COUNT(*)").
		From(schema.Name)
	if len(where) > 0 {
		page = page.Where(where)
		count = count.Where(where)
	}

	page = page.OrderBy(orderBy...)
	if filter.Limit > 0 {
		page = page.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		page = page.Offset(uint64(filter.Offset))
	}

	return page, count, nil
}

// ParseOrderBy turns "col" / "-col" into ORDER BY clauses, NULLs last,
// ties broken by id. Unknown columns are rejected.
func ParseOrderBy(schema *records.Schema, orderBy string) ([]string, error) {
	col := strings.TrimPrefix(orderBy, "-")
	if col == "" || col == entity.IDColumn {
		if strings.HasPrefix(orderBy, "-") {
			return []string{entity.IDColumn + " DESC"}, nil
		}
		return []string{entity.IDColumn}, nil
	}
	if !schema.HasColumn(col) {
		return nil, fmt.Errorf("invalid order column: %s", col)
	}
	dir := "ASC"
	if strings.HasPrefix(orderBy, "-") {
		dir = "DESC"
	}
	return []string{col + " " + dir + " NULLS LAST", entity.IDColumn}, nil
}

// Delete removes one row.
func (d Dialect) Delete(schema *records.Schema, rowID id.ID) squirrel.DeleteBuilder {
	return d.Builder().
		Delete(schema.Name).
		Where(squirrel.Eq{entity.IDColumn: d.ID(rowID)})
}

// Duplicates groups the Sequences of spec by value and keeps groups of two or more.
func (d Dialect) Duplicates(schema *records.Schema, spec sequence.Spec) squirrel.SelectBuilder {
	group := append(append([]string{}, spec.Scope...), spec.Column)
	cols := append(append([]string{}, group...), "COUNT(*) AS "+CountColumn)

	return d.Builder().
		Select(cols...).
		From(schema.Name).
		Where(squirrel.NotEq{spec.Column: nil}).
		GroupBy(group...).
		Having("COUNT(*) > 1").
		OrderBy(spec.Column)
}
