// Package plan implements the two-phase execution plan of spec.md §3/§4.1:
// a block phase that runs per block on a node, and a final phase that the
// coordinator runs after merging every node's partial results.
package plan

import (
	"time"

	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/expr"
	"github.com/nebula-analytics/nebula/types"
)

// SortType is the direction of an ORDER BY clause.
type SortType uint8

const (
	Asc SortType = iota
	Desc
)

// OrderBy is one ORDER BY term, indexing into the final phase's output
// schema.
type OrderBy struct {
	Index int
	Type  SortType
}

// BlockSkipPredicate is a column = literal WHERE clause, registered so the
// node executor can probe it against the block's bloom filter for that
// column before scanning (spec.md §4.1 predicate pushdown). The compiler
// registers every such clause; a column without a bloom filter never
// causes a block to be skipped.
type BlockSkipPredicate struct {
	Column string
	Value  interface{}
}

// BlockPhase is the per-block stage of a plan: a predicate, a projection,
// a group-by key set, and partial aggregates (spec.md §3).
type BlockPhase struct {
	Predicate  expr.Expression // nil means "no filter"
	// GroupKeys are the non-aggregate projection expressions that form the
	// group-by key tuple.
	GroupKeys []expr.Expression
	// Aggregates are the partial aggregate evaluators of the projection.
	Aggregates []expr.Aggregate
	// BlockSkip are clauses eligible for bloom-filter block skipping.
	BlockSkip []BlockSkipPredicate
	// OutputSchema is GroupKeys ⧺ partial-aggregate states, per spec.md §3.
	OutputSchema types.Schema
	// RawScan, when true, bypasses grouping/aggregation entirely and
	// returns raw projected rows (spec.md §6: display=SAMPLES).
	RawScan    bool
	RawProject []expr.Expression
}

// FinalPhase is the coordinator stage: merge partials by group-by key,
// compute final aggregate values, apply global ORDER BY and LIMIT
// (spec.md §3).
type FinalPhase struct {
	NumGroupKeys int
	Aggregates   []expr.Aggregate
	OrderBy      []OrderBy
	// Limit is the row cap; a negative value means unbounded.
	Limit        int
	OutputSchema types.Schema
}

// Plan is a compiled query: the table it targets, the time window used to
// prune candidate blocks, the two phases, and execution policy (spec.md
// §3/§4.4 "strictness flag").
type Plan struct {
	Table      string
	Window     block.Window
	BlockPhase BlockPhase
	FinalPhase FinalPhase
	// Strict controls whether a single failed block fails the whole query
	// (spec.md §4.4: "default: strict, fail whole query").
	Strict   bool
	Deadline time.Time
}
