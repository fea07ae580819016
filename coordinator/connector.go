// Package coordinator implements the server-side collaborators of
// spec.md §4.5/§4.8: the server executor that fans a plan out to nodes and
// merges partial results, and the periodic node sync loop that reconciles
// ingest specs and block residency.
package coordinator

import (
	"context"
	"time"

	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/exec"
	"github.com/nebula-analytics/nebula/ingest"
	"github.com/nebula-analytics/nebula/plan"
)

// TaskKind is the closed set of Node RPC task variants, per spec.md §6.
type TaskKind uint8

const (
	TaskQuery TaskKind = iota
	TaskIngestion
	TaskExpiration
)

func (k TaskKind) String() string {
	switch k {
	case TaskQuery:
		return "QUERY"
	case TaskIngestion:
		return "INGESTION"
	case TaskExpiration:
		return "EXPIRATION"
	default:
		return "UNKNOWN"
	}
}

// Task is one unit of work dispatched to a node over the task() verb of
// spec.md §6.
type Task struct {
	Kind TaskKind `msgpack:"kind"`

	// Plan is set for TaskQuery.
	Plan *plan.Plan `msgpack:"plan,omitempty"`
	// Spec is set for TaskIngestion.
	Spec *ingest.Spec `msgpack:"spec,omitempty"`
	// BlockSig is set for TaskExpiration.
	BlockSig string `msgpack:"block_sig,omitempty"`
}

// TaskStatus is a completed task's outcome.
type TaskStatus uint8

const (
	Succeeded TaskStatus = iota
	Failed
)

// TaskResult is a node's response to a dispatched Task.
type TaskResult struct {
	Status  TaskStatus        `msgpack:"status"`
	Partial []exec.PartialRow `msgpack:"partial,omitempty"`
	Raw     []exec.RawRow     `msgpack:"raw,omitempty"`
	Errors  []exec.BlockError `msgpack:"errors,omitempty"`
	Err     string            `msgpack:"err,omitempty"`
}

// NodeState is a node's current residency snapshot, per the state() verb
// of spec.md §6.
type NodeState struct {
	Node            string    `msgpack:"node"`
	BlockSignatures []string  `msgpack:"block_signatures"`
	LastRefresh     time.Time `msgpack:"last_refresh"`
}

// NodeConnector is the external collaborator contract of spec.md §6: the
// two verbs a coordinator uses to drive a node (task, state). The
// production implementation is GRPCConnector; FakeConnector backs tests.
type NodeConnector interface {
	Task(ctx context.Context, node string, t Task) (TaskResult, error)
	State(ctx context.Context, node string) (NodeState, error)
}

// FakeConnector is an in-process NodeConnector that drives local
// exec.Executor/block.Manager instances directly, skipping the wire
// entirely — used by coordinator tests (SPEC_FULL.md §4.5).
type FakeConnector struct {
	Executors map[string]*exec.Executor
	Managers  map[string]*block.Manager
}

func (f *FakeConnector) Task(ctx context.Context, node string, t Task) (TaskResult, error) {
	switch t.Kind {
	case TaskQuery:
		ex, ok := f.Executors[node]
		if !ok {
			return TaskResult{Status: Failed, Err: "unknown node"}, nil
		}
		res, err := ex.Scan(ctx, t.Plan, nil)
		if err != nil {
			return TaskResult{Status: Failed, Err: err.Error()}, nil
		}
		return TaskResult{Status: Succeeded, Partial: res.Partial, Raw: res.Raw, Errors: res.Errors}, nil
	case TaskIngestion, TaskExpiration:
		// Fakes treat ingestion/expiration as instantaneous no-ops; the
		// sync loop's bookkeeping (ingest.Repo state, block.Manager
		// registration) is exercised separately in its own tests.
		return TaskResult{Status: Succeeded}, nil
	default:
		return TaskResult{Status: Failed, Err: "unknown task kind"}, nil
	}
}

func (f *FakeConnector) State(ctx context.Context, node string) (NodeState, error) {
	mgr, ok := f.Managers[node]
	if !ok {
		return NodeState{}, nil
	}
	last, _ := mgr.LastRefresh(node)
	return NodeState{Node: node, BlockSignatures: mgr.BlockSignatures(node), LastRefresh: last}, nil
}
