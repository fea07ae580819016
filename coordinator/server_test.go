package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/coordinator"
	"github.com/nebula-analytics/nebula/exec"
	"github.com/nebula-analytics/nebula/expr"
	"github.com/nebula-analytics/nebula/plan"
	"github.com/nebula-analytics/nebula/types"
)

func trendsSchema(t *testing.T) types.Schema {
	t.Helper()
	s, err := types.New(
		types.Column{Name: "query", Type: types.Scalar(types.Varchar)},
		types.Column{Name: "count", Type: types.Scalar(types.BigInt)},
	)
	require.NoError(t, err)
	return s
}

func registerBlock(t *testing.T, mgr *block.Manager, schema types.Schema, node string, seq uint64, start time.Time, rows []batch.Row) {
	t.Helper()
	b := batch.NewBuilder(schema, len(rows), batch.BloomConfig{})
	for _, r := range rows {
		require.NoError(t, b.Add(r))
	}
	sealed := b.Seal()
	mgr.Register(&block.Block{
		Table:       "trends",
		SpecSig:     "trends@1d",
		Residence:   node,
		Seq:         seq,
		Window:      block.Window{Start: start, End: start.Add(24 * time.Hour)},
		RowCount:    sealed.RowCount(),
		RawByteSize: sealed.RawSize(),
		Batch:       batch.NewRef(sealed),
	})
}

// TestServerExecutorMergesAcrossNodes exercises spec.md §8 scenario S1
// across two distinct nodes: the same group key appears on both and must
// merge into one final row.
func TestServerExecutorMergesAcrossNodes(t *testing.T) {
	schema := trendsSchema(t)
	mgr := block.New()
	defer mgr.Close()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	registerBlock(t, mgr, schema, "node-a", 1, day, []batch.Row{
		{"query": "yoga", "count": int64(3)},
	})
	registerBlock(t, mgr, schema, "node-b", 2, day, []batch.Row{
		{"query": "yoga", "count": int64(5)},
		{"query": "pilates", "count": int64(2)},
	})

	conn := &coordinator.FakeConnector{
		Executors: map[string]*exec.Executor{
			"node-a": exec.New(mgr, "node-a", exec.Config{PoolSize: 1}),
			"node-b": exec.New(mgr, "node-b", exec.Config{PoolSize: 1}),
		},
		Managers: map[string]*block.Manager{"node-a": mgr, "node-b": mgr},
	}

	se, err := coordinator.NewServerExecutor(mgr, conn, coordinator.DefaultConfig(), "")
	require.NoError(t, err)

	queryCol := expr.NewColumn("query", types.Scalar(types.Varchar))
	countCol := expr.NewColumn("count", types.Scalar(types.BigInt))
	sum, err := expr.NewSum(countCol)
	require.NoError(t, err)

	p := &plan.Plan{
		Table:  "trends",
		Window: block.Window{Start: day, End: day.Add(24 * time.Hour)},
		BlockPhase: plan.BlockPhase{
			GroupKeys:  []expr.Expression{queryCol},
			Aggregates: []expr.Aggregate{sum},
		},
		FinalPhase: plan.FinalPhase{
			NumGroupKeys: 1,
			Aggregates:   []expr.Aggregate{sum},
			Limit:        -1,
		},
		Strict: true,
	}

	res, err := se.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	totals := map[string]int64{}
	for _, row := range res.Rows {
		key := string(row.Values[0].([]byte))
		totals[key] = row.Values[1].(int64)
	}
	assert.Equal(t, int64(8), totals["yoga"])
	assert.Equal(t, int64(2), totals["pilates"])
}

// TestServerExecutorOrderByLimit exercises spec.md §8 scenario S4: stable
// ORDER BY plus a bounded LIMIT over merged rows.
func TestServerExecutorOrderByLimit(t *testing.T) {
	schema := trendsSchema(t)
	mgr := block.New()
	defer mgr.Close()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	registerBlock(t, mgr, schema, "node-a", 1, day, []batch.Row{
		{"query": "yoga", "count": int64(3)},
		{"query": "pilates", "count": int64(9)},
		{"query": "hiit", "count": int64(1)},
	})

	conn := &coordinator.FakeConnector{
		Executors: map[string]*exec.Executor{"node-a": exec.New(mgr, "node-a", exec.Config{PoolSize: 1})},
		Managers:  map[string]*block.Manager{"node-a": mgr},
	}
	se, err := coordinator.NewServerExecutor(mgr, conn, coordinator.DefaultConfig(), "")
	require.NoError(t, err)

	queryCol := expr.NewColumn("query", types.Scalar(types.Varchar))
	countCol := expr.NewColumn("count", types.Scalar(types.BigInt))
	sum, err := expr.NewSum(countCol)
	require.NoError(t, err)

	p := &plan.Plan{
		Table:  "trends",
		Window: block.Window{Start: day, End: day.Add(24 * time.Hour)},
		BlockPhase: plan.BlockPhase{
			GroupKeys:  []expr.Expression{queryCol},
			Aggregates: []expr.Aggregate{sum},
		},
		FinalPhase: plan.FinalPhase{
			NumGroupKeys: 1,
			Aggregates:   []expr.Aggregate{sum},
			OrderBy:      []plan.OrderBy{{Index: 1, Type: plan.Desc}},
			Limit:        2,
		},
		Strict: true,
	}

	res, err := se.Execute(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "pilates", string(res.Rows[0].Values[0].([]byte)))
	assert.Equal(t, "yoga", string(res.Rows[1].Values[0].([]byte)))
}

// TestServerExecutorNoNodesIsEmptyNotError confirms an untouched table
// returns zero rows rather than failing.
func TestServerExecutorNoNodesIsEmptyNotError(t *testing.T) {
	mgr := block.New()
	defer mgr.Close()
	conn := &coordinator.FakeConnector{}
	se, err := coordinator.NewServerExecutor(mgr, conn, coordinator.DefaultConfig(), "")
	require.NoError(t, err)

	p := &plan.Plan{Table: "trends", FinalPhase: plan.FinalPhase{Limit: -1}}
	res, err := se.Execute(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}
