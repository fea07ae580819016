package block

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// tableIndex is one table's time-sorted block index, per spec.md §4.6.
type tableIndex struct {
	// blocks is kept sorted by Window.Start so CandidateBlocks can stop at
	// the first block that starts at or after a window's end.
	blocks []*Block
}

// TableMetrics are the per-table aggregates the sync loop recomputes
// after each tick (spec.md §4.8 step 4).
type TableMetrics struct {
	TotalRows int64
	TotalBytes int64
}

// Manager is the in-memory registry of blocks per table and block
// signatures per node, per spec.md §4.6. It is the one process-wide
// singleton alongside the ingest spec repo (spec.md §5); callers own its
// lifecycle via New/Close rather than relying on package-level init.
type Manager struct {
	mu sync.RWMutex

	tables map[string]*tableIndex
	// nodeBlocks maps node identity -> set of block signatures it carries.
	nodeBlocks map[string]map[string]struct{}
	// lastRefresh records the last time each node's block set was synced,
	// used by the sync loop (spec.md §4.6).
	lastRefresh map[string]time.Time
	metrics     map[string]TableMetrics

	log *logrus.Entry
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		tables:      make(map[string]*tableIndex),
		nodeBlocks:  make(map[string]map[string]struct{}),
		lastRefresh: make(map[string]time.Time),
		metrics:     make(map[string]TableMetrics),
		log:         logrus.WithField("component", "block.Manager"),
	}
}

// Close tears down the manager; block managers hold no background
// goroutines of their own, so Close only exists to pair with New per the
// explicit init/shutdown lifecycle of spec.md §5.
func (m *Manager) Close() {}

// Register transitions a block CREATED -> REGISTERED, making it visible to
// queries, and records it under its node's block set.
func (m *Manager) Register(b *Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b.State = Registered
	idx, ok := m.tables[b.Table]
	if !ok {
		idx = &tableIndex{}
		m.tables[b.Table] = idx
	}
	idx.blocks = append(idx.blocks, b)
	sort.Slice(idx.blocks, func(i, j int) bool {
		return idx.blocks[i].Window.Start.Before(idx.blocks[j].Window.Start)
	})

	set, ok := m.nodeBlocks[b.Residence]
	if !ok {
		set = make(map[string]struct{})
		m.nodeBlocks[b.Residence] = set
	}
	set[b.Signature()] = struct{}{}

	m.log.WithFields(logrus.Fields{
		"block": b.Signature(),
		"node":  b.Residence,
	}).Debug("block registered")
}

// Expire transitions a registered block to EXPIRED, queuing it for
// removal; it remains indexed (so in-flight queries still see it) until
// Remove is called.
func (m *Manager) Expire(sig string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range m.tables {
		for _, b := range idx.blocks {
			if b.Signature() == sig {
				b.State = Expired
			}
		}
	}
}

// Remove deletes an expired block from the table index and every node's
// block set.
func (m *Manager) Remove(sig string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range m.tables {
		out := idx.blocks[:0]
		for _, b := range idx.blocks {
			if b.Signature() == sig {
				b.State = Removed
				continue
			}
			out = append(out, b)
		}
		idx.blocks = out
	}
	for _, set := range m.nodeBlocks {
		delete(set, sig)
	}
}

// CandidateBlocks returns the REGISTERED blocks of table whose window
// intersects w, restricted to node if node is non-empty, per spec.md
// §4.4/§8 invariant 3. Blocks are sorted by window start, so the scan
// starts at the table's first block and stops once a block starts at/after
// w.End. Blocks that ended before w.Start are still visited: the lookup is
// linear in the number of blocks starting before w.End, not O(log N).
func (m *Manager) CandidateBlocks(table string, w Window, node string) []*Block {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.tables[table]
	if !ok {
		return nil
	}
	// Blocks are sorted by Window.Start ascending, so once a block starts
	// at or after w.End no later block (all with an even later start) can
	// intersect w either; the scan stops there instead of visiting every
	// block in the table.
	var out []*Block
	for _, b := range idx.blocks {
		if !b.Window.Start.Before(w.End) {
			break
		}
		if b.State != Registered {
			continue
		}
		if !b.Window.Intersects(w) {
			continue
		}
		if node != "" && b.Residence != node {
			continue
		}
		out = append(out, b)
	}
	return out
}

// NodesForTable returns the distinct node identities currently carrying a
// REGISTERED block of table, used by the server executor to discover
// which nodes to fan a plan out to (spec.md §4.5).
func (m *Manager) NodesForTable(table string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.tables[table]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var nodes []string
	for _, b := range idx.blocks {
		if b.State != Registered {
			continue
		}
		if _, ok := seen[b.Residence]; !ok {
			seen[b.Residence] = struct{}{}
			nodes = append(nodes, b.Residence)
		}
	}
	return nodes
}

// BlockSignatures returns the set of block signatures node currently
// carries, per spec.md §6's node state() verb.
func (m *Manager) BlockSignatures(node string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.nodeBlocks[node]
	out := make([]string, 0, len(set))
	for sig := range set {
		out = append(out, sig)
	}
	return out
}

// MarkRefreshed records the current time as node's last-refresh timestamp.
func (m *Manager) MarkRefreshed(node string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRefresh[node] = at
}

// LastRefresh returns the last time node's block set was synced.
func (m *Manager) LastRefresh(node string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.lastRefresh[node]
	return t, ok
}

// RecomputeMetrics recomputes each table's total row count and total raw
// byte size from its REGISTERED blocks, per spec.md §4.8 step 4.
func (m *Manager) RecomputeMetrics() map[string]TableMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]TableMetrics, len(m.tables))
	for table, idx := range m.tables {
		var tm TableMetrics
		for _, b := range idx.blocks {
			if b.State != Registered {
				continue
			}
			tm.TotalRows += int64(b.RowCount)
			tm.TotalBytes += b.RawByteSize
		}
		out[table] = tm
	}
	m.metrics = out
	return out
}

// Metrics returns the most recently computed per-table metrics.
func (m *Manager) Metrics() map[string]TableMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]TableMetrics, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v
	}
	return out
}

// BlocksForNode returns every REGISTERED block currently resident on node,
// across all tables, used by the sync loop to evaluate per-block
// expiration against the ingest spec repo (spec.md §4.8).
func (m *Manager) BlocksForNode(node string) []*Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Block
	for _, idx := range m.tables {
		for _, b := range idx.blocks {
			if b.Residence == node && b.State == Registered {
				out = append(out, b)
			}
		}
	}
	return out
}

// NodeByteTotal sums the raw byte size of every REGISTERED block node
// carries, across all tables; used by the ingest spec placement policy
// (spec.md §4.7: "least current total byte size among active nodes").
func (m *Manager) NodeByteTotal(node string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, idx := range m.tables {
		for _, b := range idx.blocks {
			if b.Residence == node && b.State == Registered {
				total += b.RawByteSize
			}
		}
	}
	return total
}
