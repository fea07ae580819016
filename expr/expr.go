// Package expr implements the value evaluators of spec.md §4.2: a closed,
// tagged-variant set of expression node kinds (column reference, literal,
// arithmetic, comparison, logical, LIKE, aggregate), each a stateless,
// reentrant evaluator over a batch.Accessor row.
//
// Per spec.md §9's design note on polymorphic evaluators, dynamic dispatch
// happens through the Expression interface rather than a class hierarchy:
// every node kind implements Eval/Type/String, and Aggregate additionally
// implements the Fold/Merge/Finalize capability set used by the block and
// final execution phases.
package expr

import (
	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/types"
)

// Expression is a node in the expression DAG of spec.md §3. eval's
// "out_null" parameter from the spec is represented here as a nil return
// value: Eval returns (nil, nil) for a null result.
type Expression interface {
	// Type is the node's statically inferred output type (spec.md §3:
	// "Every node carries an inferred output type").
	Type() types.Type
	// Eval evaluates the expression against the accessor's current row.
	Eval(row *batch.Accessor) (interface{}, error)
	String() string
}

// Fields reports the set of column names an expression references,
// directly or through its children; used by predicate pushdown (spec.md
// §4.1) to decide whether a WHERE clause is bloom-eligible or a
// _time_-bound window clause.
func Fields(e Expression) []string {
	seen := map[string]struct{}{}
	var out []string
	collectFields(e, seen, &out)
	return out
}

func collectFields(e Expression, seen map[string]struct{}, out *[]string) {
	switch n := e.(type) {
	case *Column:
		if _, ok := seen[n.Name]; !ok {
			seen[n.Name] = struct{}{}
			*out = append(*out, n.Name)
		}
	case *Arithmetic:
		collectFields(n.Left, seen, out)
		collectFields(n.Right, seen, out)
	case *Comparison:
		collectFields(n.Left, seen, out)
		collectFields(n.Right, seen, out)
	case *Logical:
		for _, o := range n.Operands {
			collectFields(o, seen, out)
		}
	case *Like:
		collectFields(n.Left, seen, out)
	case Aggregate:
		for _, c := range n.Children() {
			collectFields(c, seen, out)
		}
	}
}
