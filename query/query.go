// Package query implements the expression DSL of spec.md §4.1: an
// immutable query builder (Table/Where/Select/GroupBy/SortBy/Limit) that
// compiles into a plan.Plan.
package query

import (
	"time"

	"github.com/nebula-analytics/nebula/expr"
	"github.com/nebula-analytics/nebula/plan"
	"github.com/nebula-analytics/nebula/types"
)

// SelectItem is one projection term, with an optional output alias.
type SelectItem struct {
	Expr  expr.Expression
	Alias string
}

// Select builds a SelectItem; alias may be empty, in which case the
// compiler derives one from the expression's String().
func Select(e expr.Expression, alias string) SelectItem {
	return SelectItem{Expr: e, Alias: alias}
}

// sortItem is one ORDER BY term, referencing a 1-based select-list index.
type sortItem struct {
	index int
	typ   plan.SortType
}

// Query is an immutable query builder. Every Where/Select/GroupBy/SortBy/
// Limit call returns a new Query value rather than mutating the receiver
// (spec.md §4.1: "The builder is immutable; each call yields a new query
// value").
type Query struct {
	table    string
	schema   types.Schema
	where    expr.Expression
	selects  []SelectItem
	groupBy  []int // 1-based indices into selects
	sortBy   []sortItem
	limit    int // -1 means unbounded
	strict   bool
	deadline time.Time
	samples  bool
}

// Table begins a query against a named table with the given schema.
func Table(name string, schema types.Schema) Query {
	return Query{table: name, schema: schema, limit: -1, strict: true}
}

// Where attaches a WHERE predicate; pred must be BOOL-typed (enforced at
// Compile time).
func (q Query) Where(pred expr.Expression) Query {
	q.where = pred
	return q
}

// Select sets the projection list, overwriting any previous one.
func (q Query) Select(items ...SelectItem) Query {
	q.selects = append([]SelectItem(nil), items...)
	return q
}

// GroupBy sets the 1-based select-list indices that form the group-by key.
func (q Query) GroupBy(indices ...int) Query {
	q.groupBy = append([]int(nil), indices...)
	return q
}

// SortBy appends one ORDER BY term, referencing a 1-based select-list
// index.
func (q Query) SortBy(index int, t plan.SortType) Query {
	q.sortBy = append(append([]sortItem(nil), q.sortBy...), sortItem{index: index, typ: t})
	return q
}

// Limit caps the number of output rows; n < 0 means unbounded.
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// Strict sets the plan's failure-handling policy (spec.md §4.4); plans
// default to strict.
func (q Query) Strict(strict bool) Query {
	q.strict = strict
	return q
}

// Deadline sets the plan's execution deadline (spec.md §5).
func (q Query) Deadline(t time.Time) Query {
	q.deadline = t
	return q
}

// Samples marks the query as display=SAMPLES: the planner bypasses
// aggregation and returns raw rows (spec.md §6).
func (q Query) Samples(on bool) Query {
	q.samples = on
	return q
}
