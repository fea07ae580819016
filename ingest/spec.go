// Package ingest implements the ingest spec repository of spec.md §4.7:
// the description of which source data should be materialized as blocks,
// diffed on each sync-loop refresh into NEW/EXPIRED/RENEW transitions, and
// placed onto nodes by current byte-load.
package ingest

import (
	"fmt"
	"time"
)

// State is a Spec's lifecycle stage, per spec.md §3. Refresh gives a newly
// discovered spec NEW and a spec that replaces an earlier signature of the
// same id RENEW; both become READY once materialized. Refresh marks a spec
// EXPIRED, whatever its state, when it is replaced or no longer discovered.
type State uint8

const (
	New State = iota
	Ready
	Renew
	Expired
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Ready:
		return "READY"
	case Renew:
		return "RENEW"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// SourceKind is the closed set of source partitioning strategies from
// original_source/IngestSpec.h (SPEC_FULL.md §4.7 [SUPPLEMENT]).
type SourceKind uint8

const (
	// Swap sources publish a single latest file per table; refresh always
	// yields exactly one spec, whose signature changes whenever the file's
	// id@size changes (driving a RENEW).
	Swap SourceKind = iota
	// Roll sources publish one file per macro date within a retention
	// window; refresh yields one spec per retained day, dropping specs
	// whose macro date has aged out (driving EXPIRED).
	Roll
	// Stream sources publish one partition per message-stream partition;
	// refresh yields one spec per partition, stable unless the partition
	// count changes.
	Stream
)

func (k SourceKind) String() string {
	switch k {
	case Swap:
		return "swap"
	case Roll:
		return "roll"
	case Stream:
		return "stream"
	default:
		return "unknown"
	}
}

// TableSource describes how one table's specs are discovered.
type TableSource struct {
	Table string
	Kind  SourceKind
	// RetentionDays bounds a Roll source's retained macro dates. Kind and
	// RetentionDays are passed to the Enumerator with the source; Repo
	// itself does not read them.
	RetentionDays int
}

// Spec describes one unit of source data a node may materialize into a
// block, per spec.md §3. Signature identity is the "{id}@{size}" string
// (spec.md §3/§6); Version is a separate satori/go.uuid-generated id used
// only for log/trace correlation (SPEC_FULL.md §4.7).
type Spec struct {
	ID        string
	Table     string
	Domain    string
	Size      int64
	MacroDate time.Time
	Version   string
	State     State
	// Affinity is the node identity this spec is currently placed on, or
	// empty if unplaced.
	Affinity     string
	Materialized bool
}

// Signature is the spec's stable cross-refresh identity.
func (s *Spec) Signature() string { return Signature(s.ID, s.Size) }

// Signature builds a spec signature from its parts without requiring a
// constructed Spec.
func Signature(id string, size int64) string {
	return fmt.Sprintf("%s@%d", id, size)
}
