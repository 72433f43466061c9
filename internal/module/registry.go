package module

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/moolen/hearth/internal/config"
)

// instance is the host-side record of one manifest entry.
type instance struct {
	config      config.ModuleConfig
	module      Module
	status      Status
	err         error
	session     string
	since       time.Time
	seq         uint64
	contributed bool
	// enabled is set once OnModuleEnable ran, so disable must signal the host
	enabled     bool
}

func (i *instance) info() Info {
	out := Info{
		Name:    i.config.Name,
		Type:    i.config.Type,
		Version: i.config.Version,
		Status:  i.status.String(),
		Session: i.session,
		Since:   i.since,
	}
	if i.module != nil {
		if v := i.module.Metadata().Version; v != "" {
			out.Version = v
		}
		out.Boundary = i.module.Boundary()
	}
	if i.err != nil {
		out.Error = i.err.Error()
	}
	return out
}

// Registry stores module instances by name.
type Registry struct {
	instances map[string]*instance
	seq       uint64
	mu        sync.RWMutex
}

// NewRegistry creates a new empty instance registry
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*instance)}
}

func (r *Registry) add(inst *instance) error {
	name := inst.config.Name
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		return fmt.Errorf("instance %q is already registered", name)
	}
	r.seq++
	inst.seq = r.seq
	r.instances[name] = inst
	return nil
}

func (r *Registry) get(name string) (*instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	return inst, ok
}

func (r *Registry) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.instances[name]
	delete(r.instances, name)
	return ok
}

// byBoundary returns the instance holding an enabled module on boundary.
func (r *Registry) byBoundary(boundary string) (*instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		if inst.enabled && inst.module != nil && inst.module.Boundary() == boundary {
			return inst, true
		}
	}
	return nil, false
}

// ordered returns the instances in the order they were added.
func (r *Registry) ordered() []*instance {
	r.mu.RLock()
	out := make([]*instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Get returns the module of the named instance, nil when it never built.
func (r *Registry) Get(name string) (Module, bool) {
	inst, ok := r.get(name)
	if !ok {
		return nil, false
	}
	return inst.module, true
}

// List returns the sorted instance names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
