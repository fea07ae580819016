package ingest

import (
	"fmt"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// Enumerator discovers the current set of specs a TableSource publishes,
// per spec.md §4.7. The production implementation walks the source's
// actual file/stream listing; tests supply a StaticEnumerator.
type Enumerator interface {
	Enumerate(src TableSource, now time.Time) ([]*Spec, error)
}

// Diff is the result of one Repo.Refresh: specs newly discovered, specs no
// longer discoverable (to be expired), and specs whose signature changed
// under a stable id (to be renewed), per spec.md §4.7.
type Diff struct {
	New     []*Spec
	Expired []*Spec
	Renewed []*Spec
}

// Repo is the process-wide set of ingest specs, keyed by signature
// (spec.md §4.7). Like block.Manager, it is owned by the sync loop rather
// than a package-level singleton (spec.md §5).
type Repo struct {
	mu sync.RWMutex

	sources   map[string]TableSource // by table
	specs     map[string]*Spec       // by signature
	byTableID map[string]*Spec       // by "table/id", the current live spec for that id

	enumerate Enumerator
	log       *logrus.Entry
}

// NewRepo constructs an empty Repo using enumerate to discover specs on
// each Refresh.
func NewRepo(enumerate Enumerator) *Repo {
	return &Repo{
		sources:   make(map[string]TableSource),
		specs:     make(map[string]*Spec),
		byTableID: make(map[string]*Spec),
		enumerate: enumerate,
		log:       logrus.WithField("component", "ingest.Repo"),
	}
}

// RegisterSource adds or replaces a table's source description.
func (r *Repo) RegisterSource(src TableSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[src.Table] = src
}

// Refresh re-discovers every registered table's specs and diffs the result
// against the repo's current state, per spec.md §4.7/§4.8 step 1. Newly
// discovered specs are assigned a fresh tracing Version and left in state
// NEW; a renewed spec's old entry is marked EXPIRED and the new one RENEW;
// a dropped id's current entry is marked EXPIRED.
func (r *Repo) Refresh(now time.Time) (Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var diff Diff
	seenTableID := make(map[string]bool, len(r.byTableID))

	for table, src := range r.sources {
		discovered, err := r.enumerate.Enumerate(src, now)
		if err != nil {
			return Diff{}, fmt.Errorf("ingest: enumerate table %q: %w", table, err)
		}
		for _, spec := range discovered {
			key := table + "/" + spec.ID
			seenTableID[key] = true
			current, existed := r.byTableID[key]
			if !existed {
				spec.Version = newVersion()
				spec.State = New
				r.specs[spec.Signature()] = spec
				r.byTableID[key] = spec
				diff.New = append(diff.New, spec)
				continue
			}
			if current.Signature() == spec.Signature() {
				// Unchanged; keep the existing entry (and its state) as-is.
				continue
			}
			current.State = Expired
			diff.Expired = append(diff.Expired, current)

			spec.Version = newVersion()
			spec.State = Renew
			r.specs[spec.Signature()] = spec
			r.byTableID[key] = spec
			diff.Renewed = append(diff.Renewed, spec)
		}
	}

	// Any previously-tracked (table, id) absent from this round's discovery
	// has aged out of its source (e.g. a Roll spec past its retention
	// window) and is expired.
	for key, spec := range r.byTableID {
		if seenTableID[key] {
			continue
		}
		if spec.State == Expired {
			continue
		}
		spec.State = Expired
		diff.Expired = append(diff.Expired, spec)
		delete(r.byTableID, key)
	}

	r.log.WithFields(logrus.Fields{
		"new":     len(diff.New),
		"expired": len(diff.Expired),
		"renewed": len(diff.Renewed),
	}).Debug("ingest repo refreshed")

	return diff, nil
}

// Get returns the spec registered under signature, if any.
func (r *Repo) Get(signature string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[signature]
	return s, ok
}

// MarkReady transitions a spec to READY once its block has been
// successfully materialized on a node, per spec.md §4.8 ("mark READY on
// SUCCEEDED").
func (r *Repo) MarkReady(signature, node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.specs[signature]; ok {
		s.State = Ready
		s.Affinity = node
		s.Materialized = true
	}
}

// ShouldExpire reports whether the block for specSig currently resident on
// node should be expired: the spec is gone, marked EXPIRED, or has been
// reassigned to a different node's affinity (spec.md §4.7/§4.8).
func (r *Repo) ShouldExpire(specSig, node string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[specSig]
	if !ok {
		return true
	}
	if s.State == Expired {
		return true
	}
	if s.Affinity != "" && s.Affinity != node {
		return true
	}
	return false
}

// ClearAffinity un-assigns a spec's node placement, letting the next
// refresh/placement cycle pick a new node; used by the sync loop once a
// node's consecutive ingestion failures cross the configured threshold
// (spec.md §4.8, §9 open question (i)).
func (r *Repo) ClearAffinity(signature string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.specs[signature]; ok {
		s.Affinity = ""
		s.Materialized = false
	}
}

// PendingIngestion returns every NEW/RENEW spec not yet materialized,
// which the sync loop dispatches as INGESTION tasks (spec.md §4.8).
func (r *Repo) PendingIngestion() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Spec
	for _, s := range r.specs {
		if !s.Materialized && (s.State == New || s.State == Renew) {
			out = append(out, s)
		}
	}
	return out
}

// StaticEnumerator is a fixed-table-of-specs Enumerator, used by tests in
// place of an actual file/stream listing.
type StaticEnumerator struct {
	ByTable map[string][]*Spec
}

func (e StaticEnumerator) Enumerate(src TableSource, now time.Time) ([]*Spec, error) {
	return e.ByTable[src.Table], nil
}

// newVersion generates a per-spec tracing id with satori/go.uuid, never
// used as signature identity (spec.md §3/§6 fix that to "{id}@{size}").
func newVersion() string {
	v4, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil.String()
	}
	return v4.String()
}
