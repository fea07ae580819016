package nebula

import (
	"context"
	"sync"

	"github.com/hashicorp/memberlist"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/coordinator"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/exec"
	"github.com/nebula-analytics/nebula/ingest"
	"github.com/nebula-analytics/nebula/query"
)

// Membership supplies the active-node set the ingest placement policy and
// sync loop use each tick (spec.md §4.7/§4.8). *memberlist.Memberlist
// satisfies this directly; tests may substitute a fixed node list.
type Membership interface {
	Members() []*memberlist.Node
}

// Config configures an Engine's node identity and tunables.
type Config struct {
	// Node is this process's node identity: the residence filter for the
	// local executor and this process's own entry in the membership ring.
	Node string
	// Coordinator holds the retry bound, failure threshold, and sync
	// interval (spec.md §4.8, §9 open question (i)).
	Coordinator coordinator.Config
	// ExecPool sizes the local node executor's worker pool; the zero
	// value selects exec.DefaultPoolSize().
	ExecPool exec.Config
	// StatsdAddr optionally enables the coordinator's DataDog query
	// latency sink; empty disables it.
	StatsdAddr string
}

// DefaultConfig returns a Config with coordinator.DefaultConfig's
// documented tunables bound to node.
func DefaultConfig(node string) Config {
	return Config{
		Node:        node,
		Coordinator: coordinator.DefaultConfig(),
	}
}

// Engine wires the query core (query/plan/exec), the block and ingest
// control plane, and the distributed coordinator behind a single
// construction and shutdown lifecycle, per spec.md §2/§5.
type Engine struct {
	cfg Config
	log *logrus.Entry

	// Manager is the process-wide block registry (spec.md §4.6); owned by
	// this Engine rather than a package-level singleton.
	Manager *block.Manager
	// Repo is the process-wide ingest spec repository (spec.md §4.7).
	Repo *ingest.Repo
	// Executor runs block-phase tasks against this node's locally
	// resident blocks (spec.md §4.4).
	Executor *exec.Executor
	// Server is the coordinator-side final phase: fan-out, merge, ORDER
	// BY/LIMIT (spec.md §4.5).
	Server *coordinator.ServerExecutor
	// Sync is the periodic reconciler (spec.md §4.8).
	Sync *coordinator.SyncLoop

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine for a single node. connector drives every other
// node in the cluster (coordinator.GRPCConnector in production,
// coordinator.FakeConnector in tests); members supplies the active-node
// set; enumerate discovers each registered table's ingest specs (spec.md
// §4.7). Callers must call Close to stop the background sync loop.
func New(cfg Config, connector coordinator.NodeConnector, members Membership, enumerate ingest.Enumerator) (*Engine, error) {
	if cfg.Node == "" {
		return nil, errs.InvalidQuery.New("engine: node identity required")
	}

	manager := block.New()
	repo := ingest.NewRepo(enumerate)
	executor := exec.New(manager, cfg.Node, cfg.ExecPool)

	server, err := coordinator.NewServerExecutor(manager, connector, cfg.Coordinator, cfg.StatsdAddr)
	if err != nil {
		return nil, errors.Wrap(err, "nebula: construct server executor")
	}
	loop := coordinator.NewSyncLoop(manager, repo, connector, members, cfg.Coordinator)

	return &Engine{
		cfg:      cfg,
		log:      logrus.WithField("component", "nebula.Engine").WithField("node", cfg.Node),
		Manager:  manager,
		Repo:     repo,
		Executor: executor,
		Server:   server,
		Sync:     loop,
	}, nil
}

// RegisterSource registers a table's ingest source description with the
// spec repo, so the sync loop discovers its specs on the next tick
// (spec.md §4.7).
func (e *Engine) RegisterSource(src ingest.TableSource) {
	e.Repo.RegisterSource(src)
	e.log.WithFields(logrus.Fields{"table": src.Table, "kind": src.Kind}).Info("ingest source registered")
}

// Start launches the background sync loop (spec.md §4.8) on its own
// goroutine. Calling Start on an already-started Engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.log.Info("sync loop started")
		e.Sync.Run(ctx)
		e.log.Info("sync loop stopped")
	}()
}

// Query compiles q and executes it across every node carrying its table's
// blocks, merging partial results at the coordinator (spec.md §4.1/§4.5).
func (e *Engine) Query(ctx context.Context, q query.Query) (*coordinator.QueryResult, error) {
	p, err := q.Compile()
	if err != nil {
		return nil, err
	}
	return e.Server.Execute(ctx, p)
}

// Close stops the background sync loop, if running, and waits for it to
// exit (spec.md §5's singleton init/shutdown lifecycle).
func (e *Engine) Close() error {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	e.wg.Wait()
	e.log.Info("engine closed")
	return nil
}
