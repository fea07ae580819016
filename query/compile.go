package query

import (
	"time"

	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/expr"
	"github.com/nebula-analytics/nebula/plan"
	"github.com/nebula-analytics/nebula/types"
)

// Compile produces a plan.Plan, or fails with a typed error (errs package)
// identifying the offending expression (spec.md §4.1).
func (q Query) Compile() (*plan.Plan, error) {
	if q.table == "" {
		return nil, errs.InvalidQuery.New("no table specified")
	}
	if len(q.selects) == 0 {
		return nil, errs.InvalidQuery.New("empty select list")
	}
	if q.where != nil && q.where.Type().Kind != types.Bool {
		return nil, errs.TypeMismatch.New("WHERE", "predicate is not BOOL")
	}

	groupSet := make(map[int]bool, len(q.groupBy))
	for _, g := range q.groupBy {
		groupSet[g] = true
	}

	if q.samples {
		return q.compileSamples()
	}

	var groupKeys []expr.Expression
	var aggregates []expr.Aggregate
	groupCols := make([]types.Column, 0)
	aggCols := make([]types.Column, 0)
	// outputIndex and isAgg track, per select-list position, whether it landed in
	// groupKeys or aggregates and at what index, so ORDER BY can map
	// 1-based select indices to the final output schema.
	outputIndex := make([]int, len(q.selects))
	isAgg := make([]bool, len(q.selects))

	for i, item := range q.selects {
		if agg, ok := item.Expr.(expr.Aggregate); ok {
			aggregates = append(aggregates, agg)
			aggCols = append(aggCols, types.Column{Name: selectAlias(item, i), Type: agg.Type()})
			outputIndex[i] = len(aggregates) - 1
			isAgg[i] = true
			continue
		}
		// Every non-aggregate projection must appear in the group-by
		// index set, per spec.md §4.1 ("ungrouped projection" error).
		if !groupSet[i+1] {
			return nil, errs.UngroupedProjection.New(item.Expr.String())
		}
		groupKeys = append(groupKeys, item.Expr)
		groupCols = append(groupCols, types.Column{Name: selectAlias(item, i), Type: item.Expr.Type()})
		outputIndex[i] = len(groupKeys) - 1
		isAgg[i] = false
	}

	blockSchema, err := types.New(append(append([]types.Column(nil), groupCols...), aggCols...)...)
	if err != nil {
		return nil, errs.InvalidQuery.New(err.Error())
	}

	where, blockSkip, window := splitWhere(q.where)

	orderBy := make([]plan.OrderBy, 0, len(q.sortBy))
	for _, s := range q.sortBy {
		idx := s.index - 1
		if idx < 0 || idx >= len(q.selects) {
			return nil, errs.InvalidQuery.New("sort index out of range")
		}
		finalIdx := outputIndex[idx]
		if isAgg[idx] {
			finalIdx += len(groupKeys)
		}
		orderBy = append(orderBy, plan.OrderBy{Index: finalIdx, Type: s.typ})
	}

	if window == nil {
		window = &block.Window{Start: time.Unix(0, 0).UTC(), End: time.Unix(1<<62-1, 0).UTC()}
	}

	return &plan.Plan{
		Table:  q.table,
		Window: *window,
		BlockPhase: plan.BlockPhase{
			Predicate:    where,
			GroupKeys:    groupKeys,
			Aggregates:   aggregates,
			BlockSkip:    blockSkip,
			OutputSchema: blockSchema,
		},
		FinalPhase: plan.FinalPhase{
			NumGroupKeys: len(groupKeys),
			Aggregates:   aggregates,
			OrderBy:      orderBy,
			Limit:        q.limit,
			OutputSchema: blockSchema,
		},
		Strict:   q.strict,
		Deadline: q.deadline,
	}, nil
}

func (q Query) compileSamples() (*plan.Plan, error) {
	proj := make([]expr.Expression, 0, len(q.selects))
	cols := make([]types.Column, 0, len(q.selects))
	for i, item := range q.selects {
		if _, ok := item.Expr.(expr.Aggregate); ok {
			return nil, errs.InvalidQuery.New("SAMPLES display does not support aggregates")
		}
		proj = append(proj, item.Expr)
		cols = append(cols, types.Column{Name: selectAlias(item, i), Type: item.Expr.Type()})
	}
	schema, err := types.New(cols...)
	if err != nil {
		return nil, errs.InvalidQuery.New(err.Error())
	}
	where, blockSkip, window := splitWhere(q.where)
	if window == nil {
		window = &block.Window{Start: time.Unix(0, 0).UTC(), End: time.Unix(1<<62-1, 0).UTC()}
	}
	return &plan.Plan{
		Table:  q.table,
		Window: *window,
		BlockPhase: plan.BlockPhase{
			Predicate:    where,
			BlockSkip:    blockSkip,
			RawScan:      true,
			RawProject:   proj,
			OutputSchema: schema,
		},
		FinalPhase: plan.FinalPhase{
			Limit:        q.limit,
			OutputSchema: schema,
		},
		Strict:   q.strict,
		Deadline: q.deadline,
	}, nil
}

func selectAlias(item SelectItem, i int) string {
	if item.Alias != "" {
		return item.Alias
	}
	return item.Expr.String()
}

// splitWhere decomposes a WHERE expression into a conjunction of clauses
// (spec.md §4.1 "predicate pushdown"). Clauses of the form _time_ >= t or
// _time_ < t, with t a time.Time literal, are pulled out into window
// bounds; any other clause over _time_ stays in the per-row predicate.
// Equality clauses of a column against a literal are
// registered as bloom-eligible block-skip predicates; the remaining
// clauses are re-ANDed into the block-phase predicate.
func splitWhere(e expr.Expression) (expr.Expression, []plan.BlockSkipPredicate, *block.Window) {
	if e == nil {
		return nil, nil, nil
	}
	clauses := flattenAnd(e)
	var kept []expr.Expression
	var skip []plan.BlockSkipPredicate
	var win *block.Window

	for _, c := range clauses {
		if w := timeWindowOf(c); w != nil {
			win = mergeWindow(win, w)
			continue
		}
		if sp := blockSkipOf(c); sp != nil {
			skip = append(skip, *sp)
		}
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		return nil, skip, win
	}
	if len(kept) == 1 {
		return kept[0], skip, win
	}
	merged, err := expr.NewLogical(expr.And, kept...)
	if err != nil {
		// Operands were already validated BOOL by construction; this path
		// is unreachable in practice.
		return kept[0], skip, win
	}
	return merged, skip, win
}

func flattenAnd(e expr.Expression) []expr.Expression {
	if l, ok := e.(*expr.Logical); ok && l.Op == expr.And {
		var out []expr.Expression
		for _, o := range l.Operands {
			out = append(out, flattenAnd(o)...)
		}
		return out
	}
	return []expr.Expression{e}
}

func timeWindowOf(e expr.Expression) *block.Window {
	cmp, ok := e.(*expr.Comparison)
	if !ok {
		return nil
	}
	col, ok := cmp.Left.(*expr.Column)
	if !ok || col.Name != expr.TimeColumn {
		return nil
	}
	lit, ok := cmp.Right.(*expr.Literal)
	if !ok {
		return nil
	}
	t, ok := lit.Value.(time.Time)
	if !ok {
		return nil
	}
	switch cmp.Op {
	case expr.GE:
		return &block.Window{Start: t, End: time.Unix(1<<62-1, 0).UTC()}
	case expr.LT:
		return &block.Window{Start: time.Unix(0, 0).UTC(), End: t}
	default:
		return nil
	}
}

func mergeWindow(a, b *block.Window) *block.Window {
	if a == nil {
		return b
	}
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	return &block.Window{Start: start, End: end}
}

func blockSkipOf(e expr.Expression) *plan.BlockSkipPredicate {
	cmp, ok := e.(*expr.Comparison)
	if !ok || cmp.Op != expr.EQ {
		return nil
	}
	col, ok := cmp.Left.(*expr.Column)
	if !ok {
		return nil
	}
	lit, ok := cmp.Right.(*expr.Literal)
	if !ok {
		return nil
	}
	return &plan.BlockSkipPredicate{Column: col.Name, Value: lit.Value}
}
