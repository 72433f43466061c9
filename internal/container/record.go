package container

import (
	"fmt"
	"sort"
	"sync"
)

// Record is the container's bookkeeping for one managed component.
//
// Graph and binding fields (children, dependencies, module, tracked) are
// guarded by the owning Registry's lock; state and err by the record's own
// mutex so hooks running on different goroutines never contend on the
// registry.
type Record struct {
	key      Key
	instance any
	optional []Key

	// guarded by Registry.mu
	children     map[Key]struct{}
	dependencies map[Key]struct{}
	module       string
	seq          uint64
	tracked      bool
	removing     bool

	reg *Registry

	mu      sync.Mutex
	state   State
	err     error
	applied []Controller
}

func newRecord(reg *Registry, key Key, instance any, deps []Dependency) *Record {
	rec := &Record{
		reg:          reg,
		key:          key,
		instance:     instance,
		children:     make(map[Key]struct{}),
		dependencies: make(map[Key]struct{}),
		state:        StateConstructed,
	}
	for _, dep := range deps {
		if dep.Policy == DependencyOptional {
			rec.optional = append(rec.optional, dep.Key)
			continue
		}
		rec.dependencies[dep.Key] = struct{}{}
	}
	return rec
}

// Key returns the component key.
func (r *Record) Key() Key { return r.key }

// Instance returns the component instance.
func (r *Record) Instance() any { return r.instance }

// State returns the current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the last failure recorded for the component.
func (r *Record) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Children returns the keys of components that depend on this one.
func (r *Record) Children() []Key {
	unlock := r.rlock()
	defer unlock()
	return sortedKeys(r.children)
}

// Dependencies returns the hard and soft dependencies of the component.
func (r *Record) Dependencies() []Key {
	unlock := r.rlock()
	defer unlock()
	return sortedKeys(r.dependencies)
}

// OptionalDependencies returns declared optional dependencies.
func (r *Record) OptionalDependencies() []Key {
	return append([]Key(nil), r.optional...)
}

// BoundModule returns the owning module, if any.
func (r *Record) BoundModule() (string, bool) {
	unlock := r.rlock()
	defer unlock()
	return r.module, r.module != ""
}

// Tracked reports whether the record takes part in ordered teardown.
func (r *Record) Tracked() bool {
	unlock := r.rlock()
	defer unlock()
	return r.tracked
}

func (r *Record) String() string {
	return fmt.Sprintf("%s[%s]", r.key, r.State())
}

func (r *Record) rlock() func() {
	if r.reg == nil {
		return func() {}
	}
	r.reg.mu.RLock()
	return r.reg.mu.RUnlock
}

// transition moves the record forward to next.
func (r *Record) transition(next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !canTransition(r.state, next) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, r.state, next, r.key)
	}
	r.state = next
	return nil
}

// forceClose marks the record CLOSED regardless of its current state.
func (r *Record) forceClose() {
	r.mu.Lock()
	r.state = StateClosed
	r.mu.Unlock()
}

func (r *Record) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func (r *Record) setApplied(ctrls []Controller) {
	r.mu.Lock()
	r.applied = ctrls
	r.mu.Unlock()
}

// takeApplied returns the applied controllers once; later calls get nil.
func (r *Record) takeApplied() []Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrls := r.applied
	r.applied = nil
	return ctrls
}

func sortedKeys(set map[Key]struct{}) []Key {
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
