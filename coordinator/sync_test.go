package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/coordinator"
	"github.com/nebula-analytics/nebula/exec"
	"github.com/nebula-analytics/nebula/ingest"
)

type fakeMembership []*memberlist.Node

func (f fakeMembership) Members() []*memberlist.Node { return f }

func nodeNamed(name string) *memberlist.Node { return &memberlist.Node{Name: name} }

// TestSyncLoopDispatchesIngestionAndMarksReady exercises the ingestion
// step of the sync loop (spec.md §4.8 step 3): a pending ingest spec is
// placed on the sole active node and marked READY once the fake connector
// reports success.
func TestSyncLoopDispatchesIngestionAndMarksReady(t *testing.T) {
	mgr := block.New()
	defer mgr.Close()

	enum := ingest.StaticEnumerator{ByTable: map[string][]*ingest.Spec{
		"trends": {{ID: "2026-01-01", Table: "trends", Size: 100}},
	}}
	repo := ingest.NewRepo(enum)
	repo.RegisterSource(ingest.TableSource{Table: "trends", Kind: ingest.Swap})

	conn := &coordinator.FakeConnector{
		Executors: map[string]*exec.Executor{"node-a": exec.New(mgr, "node-a", exec.Config{PoolSize: 1})},
		Managers:  map[string]*block.Manager{"node-a": mgr},
	}
	members := fakeMembership{nodeNamed("node-a")}

	loop := coordinator.NewSyncLoop(mgr, repo, conn, members, coordinator.DefaultConfig())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	loop.Tick(context.Background(), now)

	sig := ingest.Signature("2026-01-01", 100)
	spec, ok := repo.Get(sig)
	require.True(t, ok)
	assert.Equal(t, ingest.Ready, spec.State)
	assert.Equal(t, "node-a", spec.Affinity)
	assert.Empty(t, repo.PendingIngestion())
}

// TestSyncLoopExpiresStaleBlocks exercises the expiration path of spec.md
// §8 scenario S5: a block whose spec the ingest repo does not hold is
// expired and removed from the block manager.
func TestSyncLoopExpiresStaleBlocks(t *testing.T) {
	mgr := block.New()
	defer mgr.Close()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Register a block whose spec signature the repo has never seen (and
	// never will), so the first tick must expire it immediately.
	b := &block.Block{
		Table:     "trends",
		SpecSig:   "2026-01-01@100",
		Residence: "node-a",
		Seq:       1,
		Window:    block.Window{Start: day, End: day.Add(24 * time.Hour)},
	}
	mgr.Register(b)

	repo := ingest.NewRepo(ingest.StaticEnumerator{})
	conn := &coordinator.FakeConnector{
		Executors: map[string]*exec.Executor{"node-a": exec.New(mgr, "node-a", exec.Config{PoolSize: 1})},
		Managers:  map[string]*block.Manager{"node-a": mgr},
	}
	members := fakeMembership{nodeNamed("node-a")}

	loop := coordinator.NewSyncLoop(mgr, repo, conn, members, coordinator.DefaultConfig())
	loop.Tick(context.Background(), day)

	assert.Empty(t, mgr.BlocksForNode("node-a"))
}
