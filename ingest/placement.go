package ingest

import "sort"

// ByteLoader reports a node's current total resident byte size, satisfied
// by *block.Manager.NodeByteTotal; spelled out as an interface here so the
// placement policy doesn't import block (SPEC_FULL.md §4.7).
type ByteLoader interface {
	NodeByteTotal(node string) int64
}

// Place selects the node a spec should be materialized on: least current
// total byte size among active nodes, ties broken by node id lexicographic
// order (spec.md §4.7). It returns "" if nodes is empty.
func Place(nodes []string, loader ByteLoader) string {
	if len(nodes) == 0 {
		return ""
	}
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)

	best := sorted[0]
	bestBytes := loader.NodeByteTotal(best)
	for _, n := range sorted[1:] {
		b := loader.NodeByteTotal(n)
		if b < bestBytes {
			best, bestBytes = n, b
		}
	}
	return best
}
