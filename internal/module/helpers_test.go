package module

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/discovery"
)

// fakeModule is a configurable Module.
type fakeModule struct {
	name     string
	boundary string
	version  string
	contrib  []container.Descriptor
	closed   atomic.Int32
}

func (m *fakeModule) Name() string     { return m.name }
func (m *fakeModule) Boundary() string { return m.boundary }
func (m *fakeModule) Metadata() Metadata {
	return Metadata{Name: m.name, Type: "fake", Version: m.version}
}
func (m *fakeModule) Close() error {
	m.closed.Add(1)
	return nil
}

// contributingModule adds its own descriptors while enabled.
type contributingModule struct {
	*fakeModule
}

func (m contributingModule) Contribute() ([]container.Descriptor, error) {
	return m.contrib, nil
}

// fakeHost records module signals and can fail enables.
type fakeHost struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func newFakeHost() *fakeHost {
	return &fakeHost{failFor: map[string]error{}}
}

func (h *fakeHost) OnModuleEnable(_ context.Context, m container.Module) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "enable:"+m.Name())
	return h.failFor[m.Name()]
}

func (h *fakeHost) OnModuleDisable(_ context.Context, m container.Module) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "disable:"+m.Name())
	return nil
}

func (h *fakeHost) log() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// builtModules remembers every fakeModule the "fake" factory created.
type builtModules struct {
	mu   sync.Mutex
	byID map[string]*fakeModule
}

func (b *builtModules) get(name string) *fakeModule {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byID[name]
}

func fakeFactories(t *testing.T) (*FactoryRegistry, *builtModules) {
	t.Helper()
	built := &builtModules{byID: map[string]*fakeModule{}}
	r := NewFactoryRegistry()

	factory := func(name string, cfg map[string]interface{}) (Module, error) {
		boundary, _ := cfg["boundary"].(string)
		if boundary == "" {
			boundary = name
		}
		ver, _ := cfg["version"].(string)
		m := &fakeModule{name: name, boundary: boundary, version: ver}
		built.mu.Lock()
		built.byID[name] = m
		built.mu.Unlock()
		return m, nil
	}
	if err := r.Register("fake", factory); err != nil {
		t.Fatalf("register factory: %v", err)
	}
	if err := r.Register("broken", func(string, map[string]interface{}) (Module, error) {
		return nil, errors.New("bad config")
	}); err != nil {
		t.Fatalf("register factory: %v", err)
	}
	return r, built
}

func newTestManager(t *testing.T, cfg ManagerConfig, host Host, opts ...ManagerOption) *Manager {
	t.Helper()
	factories, _ := fakeFactories(t)
	opts = append([]ManagerOption{WithFactories(factories), WithCatalog(discovery.NewCatalog())}, opts...)
	m, err := NewManager(cfg, host, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}
