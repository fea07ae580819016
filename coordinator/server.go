package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nebula-analytics/nebula/block"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/exec"
	"github.com/nebula-analytics/nebula/expr"
	"github.com/nebula-analytics/nebula/plan"
	"github.com/nebula-analytics/nebula/types"
)

// Config holds the coordinator's tunables (SPEC_FULL.md §4.8's yaml.v2
// config, §9 open question (i)).
type Config struct {
	RetryMaxElapsed  time.Duration
	FailureThreshold int
	SyncInterval     time.Duration
}

// DefaultConfig matches SPEC_FULL.md §4.8's documented defaults.
func DefaultConfig() Config {
	return Config{
		RetryMaxElapsed:  30 * time.Second,
		FailureThreshold: 3,
		SyncInterval:     5 * time.Second,
	}
}

// Row is one finalized output row: group-by key values followed by
// finalized aggregate values, in FinalPhase.OutputSchema column order.
type Row struct {
	Values []interface{}
}

// QueryResult is the server executor's output for one plan.
type QueryResult struct {
	Schema types.Schema
	Rows   []Row
}

// ServerExecutor is the coordinator-side final phase of spec.md §4.5: it
// discovers nodes carrying a table's blocks, fans a block-phase task out
// to each in parallel, merges partial results by group-by key, and applies
// the final ORDER BY/LIMIT.
type ServerExecutor struct {
	manager   *block.Manager
	connector NodeConnector
	cfg       Config
	log       *logrus.Entry

	registry   *prometheus.Registry
	groupGauge *prometheus.GaugeVec
	statsd     *statsd.Client
}

// NewServerExecutor constructs a ServerExecutor. statsdAddr may be empty to
// disable the DataDog latency sink (SPEC_FULL.md §4.5).
func NewServerExecutor(manager *block.Manager, connector NodeConnector, cfg Config, statsdAddr string) (*ServerExecutor, error) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nebula",
		Subsystem: "coordinator",
		Name:      "inflight_groups",
		Help:      "Distinct group-by keys currently merging, per table, for the most recent query.",
	}, []string{"table"})
	if err := reg.Register(gauge); err != nil {
		return nil, fmt.Errorf("coordinator: register metrics: %w", err)
	}

	var statsdClient *statsd.Client
	if statsdAddr != "" {
		c, err := statsd.New(statsdAddr)
		if err != nil {
			return nil, fmt.Errorf("coordinator: statsd client: %w", err)
		}
		statsdClient = c
	}

	return &ServerExecutor{
		manager:    manager,
		connector:  connector,
		cfg:        cfg,
		log:        logrus.WithField("component", "coordinator.ServerExecutor"),
		registry:   reg,
		groupGauge: gauge,
		statsd:     statsdClient,
	}, nil
}

// Registry exposes the coordinator's private Prometheus registry so an
// operator can mount it under an HTTP handler.
func (s *ServerExecutor) Registry() *prometheus.Registry { return s.registry }

type nodeOutcome struct {
	node   string
	result TaskResult
	err    error
}

// Execute runs p across every node carrying p.Table's blocks, merges the
// partial results, and applies the final ORDER BY/LIMIT, per spec.md §4.5.
func (s *ServerExecutor) Execute(ctx context.Context, p *plan.Plan) (*QueryResult, error) {
	start := time.Now()
	nodes := s.manager.NodesForTable(p.Table)
	if len(nodes) == 0 {
		return &QueryResult{Schema: p.FinalPhase.OutputSchema}, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if !p.Deadline.IsZero() {
		runCtx, cancel = context.WithDeadline(ctx, p.Deadline)
		defer cancel()
	}

	outcomes := make(chan nodeOutcome, len(nodes))
	for _, n := range nodes {
		go func(node string) {
			var tr TaskResult
			err := withRetry(runCtx, s.cfg.RetryMaxElapsed, func() error {
				var e error
				tr, e = s.connector.Task(runCtx, node, Task{Kind: TaskQuery, Plan: p})
				return e
			})
			outcomes <- nodeOutcome{node: node, result: tr, err: err}
		}(n)
	}

	var merr *multierror.Error
	var partials []exec.PartialRow
	var raws []exec.RawRow
	received := 0

collect:
	for received < len(nodes) {
		select {
		case <-runCtx.Done():
			break collect
		case o := <-outcomes:
			received++
			if o.err != nil {
				merr = multierror.Append(merr, fmt.Errorf("node %s: %w", o.node, o.err))
				continue
			}
			if o.result.Status == Failed {
				merr = multierror.Append(merr, fmt.Errorf("node %s: %s", o.node, o.result.Err))
				continue
			}
			for _, be := range o.result.Errors {
				merr = multierror.Append(merr, fmt.Errorf("node %s block %s: %v", o.node, be.BlockSig, be.Err))
			}
			partials = append(partials, o.result.Partial...)
			raws = append(raws, o.result.Raw...)
		}
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errs.Canceled.New(fmt.Sprintf("plan deadline %s exceeded", p.Deadline))
	}
	if runCtx.Err() == context.Canceled {
		return nil, errs.Canceled.New("plan canceled")
	}

	if merr != nil && len(merr.Errors) > 0 {
		if p.Strict {
			return nil, errs.PlanExecution.New(merr.Error())
		}
		s.log.WithError(merr).Warn("partial block failures ignored under non-strict plan")
	}

	if p.BlockPhase.RawScan {
		rows := make([]Row, 0, len(raws))
		for _, r := range raws {
			rows = append(rows, Row{Values: r.Values})
		}
		rows = sortAndLimit(rows, p.FinalPhase.OrderBy, p.FinalPhase.Limit)
		s.observe(p.Table, start, len(rows))
		return &QueryResult{Schema: p.FinalPhase.OutputSchema, Rows: rows}, nil
	}

	merged := mergePartials(partials, p.FinalPhase.Aggregates)
	s.groupGauge.WithLabelValues(p.Table).Set(float64(len(merged)))

	rows, err := finalizeRows(merged, p.FinalPhase.Aggregates)
	if err != nil {
		return nil, errs.Internal.New(err.Error())
	}
	rows = sortAndLimit(rows, p.FinalPhase.OrderBy, p.FinalPhase.Limit)
	s.observe(p.Table, start, len(rows))
	return &QueryResult{Schema: p.FinalPhase.OutputSchema, Rows: rows}, nil
}

func (s *ServerExecutor) observe(table string, start time.Time, rowCount int) {
	if s.statsd == nil {
		return
	}
	_ = s.statsd.Timing("nebula.query.latency", time.Since(start), []string{"table:" + table}, 1)
	_ = s.statsd.Gauge("nebula.query.rows", float64(rowCount), []string{"table:" + table}, 1)
}

type mergedGroup struct {
	key    []interface{}
	states []interface{}
}

// mergePartials folds every node/block's partial rows into one entry per
// distinct group-by key, using each aggregate's Merge function — the
// contract that lets block-phase partials combine associatively and
// commutatively regardless of arrival order (spec.md §5/§8 invariant 1).
func mergePartials(partials []exec.PartialRow, aggregates []expr.Aggregate) map[string]*mergedGroup {
	groups := make(map[string]*mergedGroup)
	for _, p := range partials {
		key := encodeGroupKey(p.Key)
		g, ok := groups[key]
		if !ok {
			groups[key] = &mergedGroup{key: p.Key, states: append([]interface{}(nil), p.States...)}
			continue
		}
		for i, agg := range aggregates {
			merged, err := agg.Merge(g.states[i], p.States[i])
			if err != nil {
				// Aggregate states are internally produced by this same
				// binary's Fold/Merge pair, so a merge failure indicates a
				// programming error, not bad input.
				panic(fmt.Sprintf("coordinator: merge aggregate %s: %v", agg.AggKind(), err))
			}
			g.states[i] = merged
		}
	}
	return groups
}

func finalizeRows(groups map[string]*mergedGroup, aggregates []expr.Aggregate) ([]Row, error) {
	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		values := append([]interface{}(nil), g.key...)
		for i, agg := range aggregates {
			v, err := agg.Finalize(g.states[i])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		rows = append(rows, Row{Values: values})
	}
	return rows, nil
}

func encodeGroupKey(key []interface{}) string {
	s := ""
	for _, v := range key {
		s += fmt.Sprintf("%v\x00", v)
	}
	return s
}

// sortAndLimit applies a stable ORDER BY (ties broken by the row's
// leading group-by-key order, per spec.md §5) and then truncates to limit
// rows; limit < 0 means unbounded.
func sortAndLimit(rows []Row, orderBy []plan.OrderBy, limit int) []Row {
	if len(orderBy) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, ob := range orderBy {
				c := compareGeneric(rows[i].Values[ob.Index], rows[j].Values[ob.Index])
				if c == 0 {
					continue
				}
				if ob.Type == plan.Desc {
					return c > 0
				}
				return c < 0
			}
			for k := range rows[i].Values {
				if c := compareGeneric(rows[i].Values[k], rows[j].Values[k]); c != 0 {
					return c < 0
				}
			}
			return false
		})
	}
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func compareGeneric(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if ab, ok := a.([]byte); ok {
		a = string(ab)
	}
	if bb, ok := b.([]byte); ok {
		b = string(bb)
	}
	if as, ok := a.(string); ok {
		bs, _ := b.(string)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	af, aerr := toFloat64(a)
	bf, berr := toFloat64(b)
	if aerr != nil || berr != nil {
		return 0
	}
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("cannot compare %T", v)
	}
}
