// Package exec implements the node executor (block phase) of spec.md
// §4.4: scanning candidate blocks in parallel across a fixed-size worker
// pool, evaluating the WHERE predicate and group-by/aggregate projection
// per row, and emitting a partial row cursor per block.
package exec

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/opentracing/opentracing-go"
	"github.com/shirou/gopsutil/cpu"
	"github.com/sirupsen/logrus"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/plan"
)

// Config holds the node executor's resource knobs (SPEC_FULL.md §4.8
// "Configuration").
type Config struct {
	// PoolSize is the compute pool's worker count; 0 selects
	// DefaultPoolSize().
	PoolSize int
}

// DefaultPoolSize sizes the compute pool to hardware concurrency using
// gopsutil, per spec.md §5 ("a compute pool ... sized to hardware
// concurrency"), falling back to runtime.NumCPU() if the host probe
// fails (SPEC_FULL.md §4.4).
func DefaultPoolSize() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// PartialRow is one entry of a block phase's output: a group-by key tuple
// plus the partial aggregate states folded for that group (spec.md §3).
type PartialRow struct {
	Key    []interface{}
	States []interface{}
}

// RawRow is one projected row emitted when the plan bypasses aggregation
// (spec.md §6 display=SAMPLES).
type RawRow struct {
	Values []interface{}
}

// BlockError attaches a block's identity to a block-phase failure, per
// spec.md §4.4 ("the block's error is reported to the coordinator with
// the block id").
type BlockError struct {
	BlockSig string
	Err      error
}

func (e BlockError) Error() string { return fmt.Sprintf("block %s: %v", e.BlockSig, e.Err) }

// Result is the node executor's output for one plan: the set of partial
// rows or raw rows produced, and any per-block errors encountered.
type Result struct {
	Partial []PartialRow
	Raw     []RawRow
	Errors  []BlockError
}

// Executor runs block-phase tasks against this node's locally-resident
// blocks (spec.md §4.4).
type Executor struct {
	manager  *block.Manager
	node     string
	poolSize int
	log      *logrus.Entry
}

// New constructs a node Executor bound to node's residence identity.
func New(manager *block.Manager, node string, cfg Config) *Executor {
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize()
	}
	return &Executor{
		manager:  manager,
		node:     node,
		poolSize: size,
		log:      logrus.WithField("component", "exec.Executor").WithField("node", node),
	}
}

// Scan selects this node's candidate blocks for p, probes block-skip
// predicates, and dispatches the survivors to the compute pool. cancel, if
// non-nil, is checked between blocks (not between rows) per spec.md §5;
// once set, in-flight results are discarded and Scan returns a CANCELED
// error.
func (e *Executor) Scan(ctx context.Context, p *plan.Plan, cancel *int32) (*Result, error) {
	candidates := e.manager.CandidateBlocks(p.Table, p.Window, e.node)
	surviving := make([]*block.Block, 0, len(candidates))
	for _, b := range candidates {
		if e.passesBlockSkip(b, p.BlockPhase.BlockSkip) {
			surviving = append(surviving, b)
		}
	}

	jobs := make(chan *block.Block)
	outcomes := make(chan blockScanOutcome, len(surviving))
	var wg sync.WaitGroup
	canceled := int32(0)

	worker := func() {
		defer wg.Done()
		for b := range jobs {
			if cancel != nil && atomic.LoadInt32(cancel) != 0 {
				atomic.StoreInt32(&canceled, 1)
				continue
			}
			out := e.scanOne(ctx, p, b)
			outcomes <- out
		}
	}

	pool := e.poolSize
	if pool > len(surviving) && len(surviving) > 0 {
		pool = len(surviving)
	}
	if pool <= 0 {
		pool = 1
	}
	for i := 0; i < pool; i++ {
		wg.Add(1)
		go worker()
	}
	go func() {
		for _, b := range surviving {
			jobs <- b
		}
		close(jobs)
	}()
	wg.Wait()
	close(outcomes)

	if atomic.LoadInt32(&canceled) != 0 {
		return nil, errs.Canceled.New("block scan canceled")
	}

	res := &Result{}
	for o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, *o.err)
			continue
		}
		res.Partial = append(res.Partial, o.partial...)
		res.Raw = append(res.Raw, o.raw...)
	}
	return res, nil
}

func (e *Executor) passesBlockSkip(b *block.Block, preds []plan.BlockSkipPredicate) bool {
	if len(preds) == 0 {
		return true
	}
	bt := b.Batch.Batch()
	for _, p := range preds {
		if !bt.Probably(p.Column, p.Value) {
			return false
		}
	}
	return true
}

type blockScanOutcome struct {
	partial []PartialRow
	raw     []RawRow
	err     *BlockError
}

func (e *Executor) scanOne(ctx context.Context, p *plan.Plan, b *block.Block) blockScanOutcome {
	span, _ := opentracing.StartSpanFromContext(ctx, "exec.scanOne")
	defer span.Finish()
	span.SetTag("block", b.Signature())

	result, err := e.evalBlock(p, b)
	if err != nil {
		span.SetTag("error", true)
		return blockScanOutcome{err: &BlockError{BlockSig: b.Signature(), Err: err}}
	}
	return result
}

// evalBlock runs the plan's block phase over one block's batch, in
// insertion (row) order, per spec.md §5 ("Within a block, rows are
// processed in insertion order").
func (e *Executor) evalBlock(p *plan.Plan, b *block.Block) (blockScanOutcome, error) {
	bt := b.Batch.Batch()
	acc := bt.Accessor()

	if p.BlockPhase.RawScan {
		var rows []RawRow
		for acc.Next() {
			ok, err := evalPredicate(p.BlockPhase.Predicate, acc)
			if err != nil {
				return blockScanOutcome{}, err
			}
			if !ok {
				continue
			}
			values := make([]interface{}, len(p.BlockPhase.RawProject))
			for i, pexpr := range p.BlockPhase.RawProject {
				v, err := pexpr.Eval(acc)
				if err != nil {
					return blockScanOutcome{}, err
				}
				values[i] = v
			}
			rows = append(rows, RawRow{Values: values})
		}
		return blockScanOutcome{raw: rows}, nil
	}

	groups := make(map[string]*groupEntry)
	var order []string
	for acc.Next() {
		ok, err := evalPredicate(p.BlockPhase.Predicate, acc)
		if err != nil {
			return blockScanOutcome{}, err
		}
		if !ok {
			continue
		}
		key := make([]interface{}, len(p.BlockPhase.GroupKeys))
		for i, g := range p.BlockPhase.GroupKeys {
			v, err := g.Eval(acc)
			if err != nil {
				return blockScanOutcome{}, err
			}
			key[i] = v
		}
		keyStr := encodeKey(key)
		ge, ok := groups[keyStr]
		if !ok {
			states := make([]interface{}, len(p.BlockPhase.Aggregates))
			for i, agg := range p.BlockPhase.Aggregates {
				states[i] = agg.NewState()
			}
			ge = &groupEntry{key: key, states: states}
			groups[keyStr] = ge
			order = append(order, keyStr)
		}
		for i, agg := range p.BlockPhase.Aggregates {
			ge.states[i], err = agg.Fold(ge.states[i], acc)
			if err != nil {
				return blockScanOutcome{}, err
			}
		}
	}

	rows := make([]PartialRow, 0, len(order))
	for _, k := range order {
		ge := groups[k]
		rows = append(rows, PartialRow{Key: ge.key, States: ge.states})
	}
	return blockScanOutcome{partial: rows}, nil
}

type groupEntry struct {
	key    []interface{}
	states []interface{}
}

func evalPredicate(p interface {
	Eval(row *batch.Accessor) (interface{}, error)
}, acc *batch.Accessor) (bool, error) {
	if p == nil {
		return true, nil
	}
	v, err := p.Eval(acc)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	return v.(bool), nil
}

// encodeKey renders a group-by key tuple into a byte-wise-comparable
// string for the open hash map of spec.md §4.4/§5 ("Group-by keys use
// byte-wise equality").
func encodeKey(key []interface{}) string {
	s := ""
	for _, v := range key {
		s += fmt.Sprintf("%v\x00", v)
	}
	return s
}
