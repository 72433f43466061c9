package module

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a module instance from its manifest entry.
// name: unique instance name
// config: instance-specific configuration from the manifest
type Factory func(name string, config map[string]interface{}) (Module, error)

// FactoryRegistry maps module types to factories. Extension packages fill the
// default registry from init():
//
//	func init() {
//	    if err := module.RegisterFactory("timer", NewModule); err != nil {
//	        logging.GetLogger("extensions.timer").Warn("register factory: %v", err)
//	    }
//	}
type FactoryRegistry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var defaultFactories = NewFactoryRegistry()

// NewFactoryRegistry creates a new empty factory registry
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// DefaultFactories returns the registry filled by init() registrations.
func DefaultFactories() *FactoryRegistry {
	return defaultFactories
}

// Register adds the factory for moduleType. Types are unique.
func (r *FactoryRegistry) Register(moduleType string, factory Factory) error {
	if moduleType == "" {
		return fmt.Errorf("module type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for module type %q is nil", moduleType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[moduleType]; exists {
		return fmt.Errorf("module type %q is already registered", moduleType)
	}
	r.factories[moduleType] = factory
	return nil
}

// Get retrieves the factory for moduleType.
func (r *FactoryRegistry) Get(moduleType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[moduleType]
	return f, ok
}

// List returns the registered module types, sorted.
func (r *FactoryRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// RegisterFactory registers a factory with the default registry.
func RegisterFactory(moduleType string, factory Factory) error {
	return defaultFactories.Register(moduleType, factory)
}
