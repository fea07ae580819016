package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/expr"
	"github.com/nebula-analytics/nebula/types"
)

func oneRowAccessor(t *testing.T, row batch.Row, schema types.Schema) *batch.Accessor {
	t.Helper()
	b := batch.NewBuilder(schema, 1, batch.BloomConfig{})
	require.NoError(t, b.Add(row))
	acc := b.Seal().Accessor()
	require.True(t, acc.Next())
	return acc
}

func TestArithmeticPromotesToDouble(t *testing.T) {
	schema, err := types.New(
		types.Column{Name: "a", Type: types.Scalar(types.Int)},
		types.Column{Name: "b", Type: types.Scalar(types.Double)},
	)
	require.NoError(t, err)
	acc := oneRowAccessor(t, batch.Row{"a": int32(2), "b": float64(1.5)}, schema)

	sum, err := expr.NewArithmetic(expr.Add, expr.NewColumn("a", types.Scalar(types.Int)), expr.NewColumn("b", types.Scalar(types.Double)))
	require.NoError(t, err)
	assert.Equal(t, types.Double, sum.Type().Kind)

	v, err := sum.Eval(acc)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)
}

func TestComparisonYieldsBool(t *testing.T) {
	schema, err := types.New(types.Column{Name: "a", Type: types.Scalar(types.Int)})
	require.NoError(t, err)
	acc := oneRowAccessor(t, batch.Row{"a": int32(5)}, schema)

	cmp, err := expr.NewComparison(expr.GT, expr.NewColumn("a", types.Scalar(types.Int)), expr.NewLiteral(int64(3), types.Scalar(types.Int)))
	require.NoError(t, err)
	assert.Equal(t, types.Bool, cmp.Type().Kind)
	v, err := cmp.Eval(acc)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestLogicalRequiresBoolOperands(t *testing.T) {
	_, err := expr.NewLogical(expr.And,
		expr.NewLiteral(true, types.Scalar(types.Bool)),
		expr.NewLiteral(int64(1), types.Scalar(types.Int)),
	)
	assert.Error(t, err)
}

func TestLikePatternMatching(t *testing.T) {
	schema, err := types.New(types.Column{Name: "query", Type: types.Scalar(types.Varchar)})
	require.NoError(t, err)

	cases := []struct {
		value   string
		pattern string
		want    bool
	}{
		{"leg work", "leg work%", true},
		{"leg works out", "leg work%", true},
		{"legends", "leg work%", false},
		{"abc", "a_c", true},
		{"ac", "a_c", false},
	}
	for _, c := range cases {
		acc := oneRowAccessor(t, batch.Row{"query": c.value}, schema)
		like, err := expr.NewLike(expr.NewColumn("query", types.Scalar(types.Varchar)), c.pattern)
		require.NoError(t, err)
		v, err := like.Eval(acc)
		require.NoError(t, err)
		assert.Equal(t, c.want, v, "value=%q pattern=%q", c.value, c.pattern)
	}
}

func TestCountStarCountsNullRows(t *testing.T) {
	schema, err := types.New(types.Column{Name: "query", Type: types.Scalar(types.Varchar)})
	require.NoError(t, err)
	b := batch.NewBuilder(schema, 2, batch.BloomConfig{})
	require.NoError(t, b.Add(batch.Row{"query": "yoga"}))
	require.NoError(t, b.Add(batch.Row{})) // null query
	bt := b.Seal()

	count := expr.NewCount(nil)
	state := count.NewState()
	acc := bt.Accessor()
	for acc.Next() {
		state, err = count.Fold(state, acc)
		require.NoError(t, err)
	}
	final, err := count.Finalize(state)
	require.NoError(t, err)
	assert.Equal(t, int64(2), final)
}

func TestCountColumnSkipsNulls(t *testing.T) {
	schema, err := types.New(types.Column{Name: "query", Type: types.Scalar(types.Varchar)})
	require.NoError(t, err)
	b := batch.NewBuilder(schema, 2, batch.BloomConfig{})
	require.NoError(t, b.Add(batch.Row{"query": "yoga"}))
	require.NoError(t, b.Add(batch.Row{}))
	bt := b.Seal()

	col := expr.NewColumn("query", types.Scalar(types.Varchar))
	count := expr.NewCount(col)
	state := count.NewState()
	acc := bt.Accessor()
	var err error
	for acc.Next() {
		state, err = count.Fold(state, acc)
		require.NoError(t, err)
	}
	final, err := count.Finalize(state)
	require.NoError(t, err)
	assert.Equal(t, int64(1), final)
}

func TestSumMergeAssociative(t *testing.T) {
	schema, err := types.New(types.Column{Name: "count", Type: types.Scalar(types.BigInt)})
	require.NoError(t, err)
	b := batch.NewBuilder(schema, 3, batch.BloomConfig{})
	for _, v := range []int64{3, 5, 2} {
		require.NoError(t, b.Add(batch.Row{"count": v}))
	}
	bt := b.Seal()

	sum, err := expr.NewSum(expr.NewColumn("count", types.Scalar(types.BigInt)))
	require.NoError(t, err)

	// Fold the whole set at once.
	whole := sum.NewState()
	acc := bt.Accessor()
	for acc.Next() {
		whole, err = sum.Fold(whole, acc)
		require.NoError(t, err)
	}

	// Fold in two partitions and merge, and assert associativity (spec.md
	// §8 invariant 1).
	p1 := sum.NewState()
	acc = bt.Accessor()
	acc.Seek(-1)
	acc.Next()
	p1, err = sum.Fold(p1, acc)
	require.NoError(t, err)
	acc.Next()
	p1, err = sum.Fold(p1, acc)
	require.NoError(t, err)

	p2 := sum.NewState()
	acc.Next()
	p2, err = sum.Fold(p2, acc)
	require.NoError(t, err)

	merged, err := sum.Merge(p1, p2)
	require.NoError(t, err)
	assert.Equal(t, whole, merged)
}

func TestAvgFinalize(t *testing.T) {
	schema, err := types.New(types.Column{Name: "count", Type: types.Scalar(types.BigInt)})
	require.NoError(t, err)
	b := batch.NewBuilder(schema, 2, batch.BloomConfig{})
	require.NoError(t, b.Add(batch.Row{"count": int64(2)}))
	require.NoError(t, b.Add(batch.Row{"count": int64(4)}))
	bt := b.Seal()

	avg, err := expr.NewAvg(expr.NewColumn("count", types.Scalar(types.BigInt)))
	require.NoError(t, err)
	state := avg.NewState()
	acc := bt.Accessor()
	for acc.Next() {
		state, err = avg.Fold(state, acc)
		require.NoError(t, err)
	}
	final, err := avg.Finalize(state)
	require.NoError(t, err)
	assert.Equal(t, 3.0, final)
}
