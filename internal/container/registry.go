package container

import (
	"fmt"
	"sort"
	"sync"

	"github.com/moolen/hearth/internal/logging"
)

// Registry is the dependency graph of managed components: a lookup map plus
// the ordered list used for teardown. One lock guards both, together with
// the graph and binding fields of every record.
type Registry struct {
	mu      sync.RWMutex
	records map[Key]*Record
	ordered []*Record
	nextSeq uint64
	logger  *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[Key]*Record),
		logger:  logging.GetLogger("container.registry"),
	}
}

// NewRecord creates a CONSTRUCTED record owned by this registry. Optional
// dependencies are kept for reference only and never create edges.
func (r *Registry) NewRecord(key Key, instance any, deps ...Dependency) *Record {
	return newRecord(r, key, instance, deps)
}

// Register inserts rec and links it as a child of each of its dependencies.
// Tracked records are appended to the ordered teardown list.
//
// Every hard and soft dependency recorded on rec must be present; the map,
// list and edges are only touched when all checks pass.
func (r *Registry) Register(rec *Record, track bool) error {
	if rec == nil || rec.key.IsZero() {
		return fmt.Errorf("cannot register record without key")
	}
	if rec.reg != r {
		return fmt.Errorf("record %s belongs to another registry", rec.key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.key]; exists {
		return &RegistrationError{Key: rec.key, Module: rec.module, Err: ErrDuplicateRegistration}
	}
	if rec.removing {
		return fmt.Errorf("record %s was already unregistered", rec.key)
	}
	for dep := range rec.dependencies {
		parent, ok := r.records[dep]
		if !ok || parent.removing {
			return &RegistrationError{
				Key:    rec.key,
				Module: rec.module,
				Err:    fmt.Errorf("%w: %s", ErrMissingHardDependency, dep),
			}
		}
	}

	r.nextSeq++
	rec.seq = r.nextSeq
	rec.tracked = track
	r.records[rec.key] = rec
	if track {
		r.ordered = append(r.ordered, rec)
	}
	for dep := range rec.dependencies {
		r.records[dep].children[rec.key] = struct{}{}
	}

	r.logger.Debug("Registered %s (seq %d, %d dependencies)", rec.key, rec.seq, len(rec.dependencies))
	return nil
}

// Unregister removes rec and, depth first, every component that depends on
// it. For each removed child, teardown is invoked after the child's own
// children are gone and before the child leaves the map; it is not invoked
// for rec itself. The lock is never held while teardown runs.
//
// The returned slice lists everything removed, descendants first and rec
// last. Unregistering a record that is not present returns nil.
func (r *Registry) Unregister(rec *Record, teardown func(*Record)) []*Record {
	if rec == nil {
		return nil
	}
	return r.unregister(rec, teardown, false)
}

func (r *Registry) unregister(rec *Record, teardown func(*Record), self bool) []*Record {
	r.mu.Lock()
	if current, ok := r.records[rec.key]; !ok || current != rec || rec.removing {
		r.mu.Unlock()
		return nil
	}
	rec.removing = true
	children := r.childrenLocked(rec)
	r.mu.Unlock()

	var removed []*Record
	for _, child := range children {
		removed = append(removed, r.unregister(child, teardown, true)...)
	}

	if self && teardown != nil {
		teardown(rec)
	}

	r.mu.Lock()
	delete(r.records, rec.key)
	r.removeOrderedLocked(rec)
	for dep := range rec.dependencies {
		if parent, ok := r.records[dep]; ok {
			delete(parent.children, rec.key)
		}
	}
	r.mu.Unlock()

	r.logger.Debug("Unregistered %s (%d dependents removed)", rec.key, len(removed))
	return append(removed, rec)
}

// childrenLocked returns the present, not yet removing children of rec,
// most recently registered first.
func (r *Registry) childrenLocked(rec *Record) []*Record {
	children := make([]*Record, 0, len(rec.children))
	for key := range rec.children {
		child, ok := r.records[key]
		if !ok || child.removing {
			continue
		}
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].seq > children[j].seq })
	return children
}

func (r *Registry) removeOrderedLocked(rec *Record) {
	for i, candidate := range r.ordered {
		if candidate == rec {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			return
		}
	}
}

// Lookup returns the record for key.
func (r *Registry) Lookup(key Key) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	return rec, ok
}

// Exists reports whether key has a record.
func (r *Registry) Exists(key Key) bool {
	_, ok := r.Lookup(key)
	return ok
}

// IsFullyRegistered reports whether every key is present with a non-nil
// instance and not in the middle of being unregistered.
func (r *Registry) IsFullyRegistered(keys ...Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range keys {
		rec, ok := r.records[key]
		if !ok || rec.instance == nil || rec.removing {
			return false
		}
	}
	return true
}

// Ordered returns a snapshot of the tracked records in registration order.
func (r *Registry) Ordered() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Record(nil), r.ordered...)
}

// Records returns every record, tracked or not, sorted by registration.
func (r *Registry) Records() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sortBySeq(out)
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Clear drops every record and edge and returns what was removed in
// registration order.
func (r *Registry) Clear() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		rec.removing = true
		rec.children = make(map[Key]struct{})
		out = append(out, rec)
	}
	sortBySeq(out)
	r.records = make(map[Key]*Record)
	r.ordered = nil
	return out
}

func sortBySeq(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
}
