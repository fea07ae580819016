// Package block implements the block lifecycle and the in-memory block
// manager registry of spec.md §3/§4.6: a uniquely identified unit of
// physical residency binding exactly one batch to a node and a time
// range, and the registry that indexes blocks per table and per node.
package block

import (
	"fmt"
	"time"

	"github.com/nebula-analytics/nebula/batch"
)

// State is a Block's lifecycle stage, per spec.md §3:
// CREATED -> REGISTERED -> EXPIRED -> REMOVED.
type State uint8

const (
	Created State = iota
	Registered
	Expired
	Removed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Registered:
		return "REGISTERED"
	case Expired:
		return "EXPIRED"
	case Removed:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Window is the half-open time range [Start, End) a block covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// Intersects reports whether w and o overlap, per spec.md §8 invariant 3.
func (w Window) Intersects(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Block is a uniquely identified unit of physical residency, per
// spec.md §3.
type Block struct {
	Table        string
	SpecSig      string
	Residence    string // node identity
	Seq          uint64
	Window       Window
	RowCount     int
	RawByteSize  int64
	State        State
	Batch        batch.Ref
}

// Signature is the stable cross-process identity of a block, per
// spec.md §6: "{table}#{spec_sig}#{seq}".
func (b *Block) Signature() string {
	return Signature(b.Table, b.SpecSig, b.Seq)
}

// Signature builds a block signature from its parts without requiring a
// constructed Block, e.g. when only the identity triple is known.
func Signature(table, specSig string, seq uint64) string {
	return fmt.Sprintf("%s#%s#%d", table, specSig, seq)
}
