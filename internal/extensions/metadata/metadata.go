// Package metadata is an extension module providing a process-wide
// key/value store. The store records module enable and disable events it
// observes on the event bus under "module.<name>".
package metadata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/discovery"
	"github.com/moolen/hearth/internal/eventbus"
	"github.com/moolen/hearth/internal/logging"
	"github.com/moolen/hearth/internal/module"
)

const (
	ModuleType = "metadata"
	Boundary   = "metadata"
	Version    = "1.0.0"
)

func init() {
	logger := logging.GetLogger("extensions.metadata")
	if err := module.RegisterFactory(ModuleType, NewModule); err != nil {
		logger.Warn("Failed to register metadata factory: %v", err)
	}
	if err := discovery.Register(Boundary, "metadata.store", Descriptors); err != nil {
		logger.Warn("Failed to register metadata components: %v", err)
	}
}

// Seed holds the initial values from the manifest config.
type Seed struct {
	Values map[string]string
}

// Descriptors returns the components of the metadata boundary.
func Descriptors() ([]container.Descriptor, error) {
	return []container.Descriptor{
		container.Provide(NewStore, container.Optional[*Seed]()),
	}, nil
}

// Module is a metadata module instance.
type Module struct {
	name string
	seed Seed
}

// NewModule builds a metadata module. config["values"] seeds the store.
func NewModule(name string, config map[string]interface{}) (module.Module, error) {
	seed := Seed{Values: map[string]string{}}
	if raw, ok := config["values"]; ok {
		values, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("metadata module %s: values must be a map", name)
		}
		for k, v := range values {
			seed.Values[k] = fmt.Sprint(v)
		}
	}
	return &Module{name: name, seed: seed}, nil
}

func (m *Module) Name() string     { return m.name }
func (m *Module) Boundary() string { return Boundary }

func (m *Module) Metadata() module.Metadata {
	return module.Metadata{Name: m.name, Type: ModuleType, Version: Version, Description: "Key/value store"}
}

// Contribute supplies the seed values.
func (m *Module) Contribute() ([]container.Descriptor, error) {
	seed := m.seed
	return []container.Descriptor{container.Supply(&seed)}, nil
}

// Store is a concurrent string map.
type Store struct {
	Seed *Seed `inject:"optional"`

	mu     sync.RWMutex
	values map[string]string
}

// NewStore creates an empty store.
func NewStore() (*Store, error) {
	return &Store{values: make(map[string]string)}, nil
}

// PreInit loads the seed values.
func (s *Store) PreInit(context.Context) error {
	if s.Seed == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.Seed.Values {
		s.values[k] = v
	}
	return nil
}

// Subscriptions implements eventbus.Subscriber.
func (s *Store) Subscriptions() []eventbus.Subscription {
	return []eventbus.Subscription{
		eventbus.On(func(_ context.Context, e container.ModuleEnabled) {
			s.Set("module."+e.Module, "enabled")
		}),
		eventbus.On(func(_ context.Context, e container.ModuleDisabled) {
			s.Set("module."+e.Module, "disabled")
		}),
	}
}

// Close drops every value.
func (s *Store) Close() error {
	s.mu.Lock()
	s.values = make(map[string]string)
	s.mu.Unlock()
	return nil
}

func (s *Store) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	delete(s.values, key)
	return ok
}

// Keys returns the sorted keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the values.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
