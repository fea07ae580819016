package nebula_test

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nebula "github.com/nebula-analytics/nebula"
	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/coordinator"
	"github.com/nebula-analytics/nebula/exec"
	"github.com/nebula-analytics/nebula/expr"
	"github.com/nebula-analytics/nebula/ingest"
	"github.com/nebula-analytics/nebula/query"
	"github.com/nebula-analytics/nebula/types"
)

type fakeMembers []*memberlist.Node

func (f fakeMembers) Members() []*memberlist.Node { return f }

func trendsSchema(t *testing.T) types.Schema {
	t.Helper()
	s, err := types.New(
		types.Column{Name: "query", Type: types.Scalar(types.Varchar)},
		types.Column{Name: "count", Type: types.Scalar(types.BigInt)},
	)
	require.NoError(t, err)
	return s
}

// TestEngineQueryEndToEnd exercises spec.md §8 scenario S1 through the
// single wiring entry point: register a block on one node, compile a
// grouped-sum query, and execute it via Engine.Query. The fake connector
// is wired to the Engine's own manager/executor after construction, as a
// single-node stand-in for "this node talking to itself" (spec.md §4.5
// still fans out over the NodeConnector contract, just to one node).
func TestEngineQueryEndToEnd(t *testing.T) {
	cfg := nebula.DefaultConfig("node-a")
	members := fakeMembers{{Name: "node-a"}}
	conn := &coordinator.FakeConnector{
		Executors: map[string]*exec.Executor{},
		Managers:  map[string]*block.Manager{},
	}
	enum := ingest.StaticEnumerator{}

	eng, err := nebula.New(cfg, conn, members, enum)
	require.NoError(t, err)
	defer eng.Close()

	conn.Executors["node-a"] = eng.Executor
	conn.Managers["node-a"] = eng.Manager

	schema := trendsSchema(t)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := batch.NewBuilder(schema, 4, batch.BloomConfig{})
	require.NoError(t, b.Add(batch.Row{"query": "yoga", "count": int64(3)}))
	require.NoError(t, b.Add(batch.Row{"query": "yoga", "count": int64(5)}))
	require.NoError(t, b.Add(batch.Row{"query": "pilates", "count": int64(2)}))
	sealed := b.Seal()

	eng.Manager.Register(&block.Block{
		Table:       "trends",
		SpecSig:     "trends@1d",
		Residence:   "node-a",
		Seq:         1,
		Window:      block.Window{Start: day, End: day.Add(24 * time.Hour)},
		RowCount:    sealed.RowCount(),
		RawByteSize: sealed.RawSize(),
		Batch:       batch.NewRef(sealed),
	})

	queryCol := expr.NewColumn("query", types.Scalar(types.Varchar))
	countCol := expr.NewColumn("count", types.Scalar(types.BigInt))
	sum, err := expr.NewSum(countCol)
	require.NoError(t, err)

	q := query.Table("trends", schema).
		Select(query.Select(queryCol, "query"), query.Select(sum, "total")).
		GroupBy(1)

	res, err := eng.Query(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	totals := map[string]int64{}
	for _, row := range res.Rows {
		totals[string(row.Values[0].([]byte))] = row.Values[1].(int64)
	}
	assert.Equal(t, int64(8), totals["yoga"])
	assert.Equal(t, int64(2), totals["pilates"])
}

// TestEngineRegisterSourceFeedsSyncLoop confirms RegisterSource makes a
// table's ingest spec visible through the same Repo the sync loop drives
// (spec.md §4.7/§4.8).
func TestEngineRegisterSourceFeedsSyncLoop(t *testing.T) {
	cfg := nebula.DefaultConfig("node-a")
	members := fakeMembers{{Name: "node-a"}}
	conn := &coordinator.FakeConnector{
		Executors: map[string]*exec.Executor{},
		Managers:  map[string]*block.Manager{},
	}
	enum := ingest.StaticEnumerator{ByTable: map[string][]*ingest.Spec{
		"trends": {{ID: "2026-01-01", Table: "trends", Size: 42}},
	}}

	eng, err := nebula.New(cfg, conn, members, enum)
	require.NoError(t, err)
	defer eng.Close()
	conn.Executors["node-a"] = eng.Executor
	conn.Managers["node-a"] = eng.Manager

	eng.RegisterSource(ingest.TableSource{Table: "trends", Kind: ingest.Swap})

	_, err = eng.Repo.Refresh(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	sig := ingest.Signature("2026-01-01", 42)
	spec, ok := eng.Repo.Get(sig)
	require.True(t, ok)
	assert.Equal(t, ingest.New, spec.State)
	assert.NotEmpty(t, eng.Repo.PendingIngestion())
}
