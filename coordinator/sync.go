package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/sirupsen/logrus"

	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/ingest"
)

// membership is the narrow slice of memberlist.Memberlist the sync loop
// depends on, so tests can substitute a fixed node list instead of
// standing up a real gossip ring.
type membership interface {
	Members() []*memberlist.Node
}

// SyncLoop is the periodic reconciler of spec.md §4.8: per active node, it
// expires stale blocks, dispatches pending ingestions, and recomputes
// per-table metrics.
type SyncLoop struct {
	manager   *block.Manager
	repo      *ingest.Repo
	connector NodeConnector
	members   membership
	cfg       Config
	log       *logrus.Entry

	mu       sync.Mutex
	failures map[string]int // spec signature -> consecutive ingestion failures
}

// NewSyncLoop constructs a SyncLoop. members supplies the active-node set
// each tick, per SPEC_FULL.md §4.8 ("iterates memberlist.Members() each
// tick rather than a static config list").
func NewSyncLoop(manager *block.Manager, repo *ingest.Repo, connector NodeConnector, members membership, cfg Config) *SyncLoop {
	return &SyncLoop{
		manager:   manager,
		repo:      repo,
		connector: connector,
		members:   members,
		cfg:       cfg,
		log:       logrus.WithField("component", "coordinator.SyncLoop"),
		failures:  make(map[string]int),
	}
}

// Run ticks every cfg.SyncInterval until ctx is canceled.
func (l *SyncLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx, time.Now())
		}
	}
}

func (l *SyncLoop) activeNodes() []string {
	members := l.members.Members()
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Name)
	}
	return out
}

// Tick runs one reconciliation pass: refresh the ingest repo, expire stale
// blocks, dispatch pending ingestions, and recompute metrics (spec.md
// §4.8 steps 1-4). now is threaded through explicitly so tests can drive
// deterministic macro-date/retention behavior.
func (l *SyncLoop) Tick(ctx context.Context, now time.Time) {
	nodes := l.activeNodes()

	if _, err := l.repo.Refresh(now); err != nil {
		l.log.WithError(err).Error("ingest spec refresh failed")
		return
	}

	for _, node := range nodes {
		l.reconcileExpirations(ctx, node)
	}

	l.dispatchIngestions(ctx, nodes)

	l.manager.RecomputeMetrics()
}

// reconcileExpirations sends an EXPIRATION task for every block resident
// on node whose spec should no longer live there (spec.md §4.8 step 2).
func (l *SyncLoop) reconcileExpirations(ctx context.Context, node string) {
	for _, b := range l.manager.BlocksForNode(node) {
		if !l.repo.ShouldExpire(b.SpecSig, node) {
			continue
		}
		sig := b.Signature()
		err := withRetry(ctx, l.cfg.RetryMaxElapsed, func() error {
			res, e := l.connector.Task(ctx, node, Task{Kind: TaskExpiration, BlockSig: sig})
			if e != nil {
				return e
			}
			if res.Status == Failed {
				return errs.Internal.New(res.Err)
			}
			return nil
		})
		if err != nil {
			l.log.WithError(err).WithFields(logrus.Fields{"node": node, "block": sig}).
				Warn("expiration task failed")
			continue
		}
		l.manager.Expire(sig)
		l.manager.Remove(sig)
	}
}

// dispatchIngestions places every not-yet-materialized spec onto an active
// node and sends an INGESTION task, marking the spec READY on success and
// bumping its failure counter otherwise; a spec whose failures cross
// cfg.FailureThreshold has its affinity cleared so the next tick may
// reassign it to a different node (spec.md §4.8 step 3, §9 open question
// (i)).
func (l *SyncLoop) dispatchIngestions(ctx context.Context, nodes []string) {
	if len(nodes) == 0 {
		return
	}
	for _, spec := range l.repo.PendingIngestion() {
		node := spec.Affinity
		if node == "" {
			node = ingest.Place(nodes, l.manager)
		}
		sig := spec.Signature()
		err := withRetry(ctx, l.cfg.RetryMaxElapsed, func() error {
			res, e := l.connector.Task(ctx, node, Task{Kind: TaskIngestion, Spec: spec})
			if e != nil {
				return e
			}
			if res.Status == Failed {
				return errs.Internal.New(res.Err)
			}
			return nil
		})
		if err != nil {
			l.recordFailure(sig, node)
			l.log.WithError(err).WithFields(logrus.Fields{"node": node, "spec": sig}).
				Warn("ingestion task failed")
			continue
		}
		l.clearFailures(sig)
		l.repo.MarkReady(sig, node)
	}
}

func (l *SyncLoop) recordFailure(specSig, node string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[specSig]++
	if l.failures[specSig] >= l.cfg.FailureThreshold {
		l.repo.ClearAffinity(specSig)
		delete(l.failures, specSig)
	}
}

func (l *SyncLoop) clearFailures(specSig string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, specSig)
}
