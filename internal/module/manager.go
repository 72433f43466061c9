package module

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/discovery"
	"github.com/moolen/hearth/internal/logging"
	"github.com/moolen/hearth/internal/metrics"
)

// ManagerConfig holds configuration for the module Manager.
type ManagerConfig struct {
	// ManifestPath is the modules.yaml to load. Empty starts no modules.
	ManifestPath string

	// MinVersion rejects module instances with a lower version
	MinVersion string

	// Watch reloads the manifest on change
	Watch bool

	// DebounceMillis is passed to the manifest watcher
	DebounceMillis int
}

// ManagerFromConfig maps the modules section of hearth.yaml.
func ManagerFromConfig(cfg config.ModulesConfig) ManagerConfig {
	return ManagerConfig{
		ManifestPath:   cfg.ManifestPath,
		MinVersion:     cfg.MinVersion,
		Watch:          cfg.Watch,
		DebounceMillis: cfg.DebounceMillis,
	}
}

// Manager enables and disables module instances in a Host according to the
// manifest. A module whose enable fails is marked failed and the others keep
// running.
type Manager struct {
	config     ManagerConfig
	host       Host
	factories  *FactoryRegistry
	catalog    *discovery.Catalog
	registry   *Registry
	metrics    *metrics.Modules
	watcher    *config.ManifestWatcher
	minVersion *version.Version
	mu         sync.Mutex
	logger     *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFactories replaces the default factory registry.
func WithFactories(r *FactoryRegistry) ManagerOption {
	return func(m *Manager) { m.factories = r }
}

// WithCatalog sets the discovery catalog Contributor descriptors are added to.
// It must be the catalog the host scans.
func WithCatalog(c *discovery.Catalog) ManagerOption {
	return func(m *Manager) { m.catalog = c }
}

// WithMetrics records module status and reloads.
func WithMetrics(mm *metrics.Modules) ManagerOption {
	return func(m *Manager) { m.metrics = mm }
}

// NewManager creates a module manager driving host.
func NewManager(cfg ManagerConfig, host Host, opts ...ManagerOption) (*Manager, error) {
	if host == nil {
		return nil, fmt.Errorf("host cannot be nil")
	}

	m := &Manager{
		config:    cfg,
		host:      host,
		factories: defaultFactories,
		catalog:   discovery.Default(),
		registry:  NewRegistry(),
		logger:    logging.GetLogger("module.manager"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.MinVersion != "" {
		minVer, err := version.NewVersion(cfg.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid MinVersion %q: %w", cfg.MinVersion, err)
		}
		m.minVersion = minVer
	}
	return m, nil
}

// Name implements lifecycle.Service
func (m *Manager) Name() string {
	return "module-manager"
}

// Start applies the manifest and, when configured, starts watching it.
func (m *Manager) Start(ctx context.Context) error {
	if m.config.ManifestPath == "" {
		m.logger.Debug("No module manifest configured")
		return nil
	}

	if !m.config.Watch {
		manifest, err := config.LoadModulesFile(m.config.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to load module manifest: %w", err)
		}
		m.logApply(m.Apply(ctx, manifest))
		return nil
	}

	watcher, err := config.NewManifestWatcher(config.ManifestWatcherConfig{
		FilePath:       m.config.ManifestPath,
		DebounceMillis: m.config.DebounceMillis,
	}, m.reload)
	if err != nil {
		return fmt.Errorf("failed to create manifest watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		m.disableAll(ctx)
		return fmt.Errorf("failed to start manifest watcher: %w", err)
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()
	return nil
}

// reload is the watcher callback. Module failures are reported through
// status, never back to the watcher.
func (m *Manager) reload(manifest *config.ModulesFile) error {
	err := m.Apply(context.Background(), manifest)
	m.metrics.Reload(err)
	m.logApply(err)
	return nil
}

func (m *Manager) logApply(err error) {
	if err != nil {
		m.logger.Warn("Some modules failed to load: %v", err)
	}
	loaded := 0
	for _, info := range m.Modules() {
		if info.Status == StatusLoaded.String() {
			loaded++
		}
	}
	m.logger.Info("Modules applied: %d loaded", loaded)
}

// Stop stops watching and disables every module, last enabled first.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			m.logger.Warn("Error stopping manifest watcher: %v", err)
		}
	}
	return m.disableAll(ctx)
}

func (m *Manager) disableAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.registry.ordered()
	var errs []error
	for i := len(insts) - 1; i >= 0; i-- {
		if err := m.disableLocked(ctx, insts[i].config.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply reconciles the running modules with manifest. Instances that are no
// longer enabled or whose entry changed are disabled first, then new enabled
// entries are enabled in manifest order. The returned error joins the
// failures of individual modules.
func (m *Manager) Apply(ctx context.Context, manifest *config.ModulesFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	desired := make(map[string]config.ModuleConfig, len(manifest.Modules))
	for _, mc := range manifest.Modules {
		desired[mc.Name] = mc
	}

	var errs []error
	current := m.registry.ordered()
	for i := len(current) - 1; i >= 0; i-- {
		inst := current[i]
		want, listed := desired[inst.config.Name]
		if listed && reflect.DeepEqual(want, inst.config) {
			continue
		}
		if err := m.disableLocked(ctx, inst.config.Name); err != nil {
			errs = append(errs, err)
		}
	}

	for _, mc := range manifest.Modules {
		if _, running := m.registry.get(mc.Name); running {
			continue
		}
		if !mc.Enabled {
			m.track(&instance{config: mc, status: StatusDisabled, since: time.Now()})
			m.metrics.SetStatus(mc.Name, StatusDisabled.String(), allStatuses)
			continue
		}
		if err := m.enableLocked(ctx, mc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enable builds and enables a single module instance.
func (m *Manager) Enable(ctx context.Context, mc config.ModuleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.registry.get(mc.Name); exists {
		return fmt.Errorf("module %q is already known", mc.Name)
	}
	return m.enableLocked(ctx, mc)
}

// Disable disables the named instance and forgets it.
func (m *Manager) Disable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.registry.get(name); !exists {
		return fmt.Errorf("module %q is not known", name)
	}
	return m.disableLocked(ctx, name)
}

func (m *Manager) enableLocked(ctx context.Context, mc config.ModuleConfig) error {
	inst := &instance{config: mc, session: uuid.NewString(), since: time.Now()}
	m.track(inst)
	logger := m.logger.WithFields(
		logging.Field("module", mc.Name),
		logging.Field("session", inst.session),
	)

	mod, err := m.build(mc)
	if err != nil {
		return m.fail(inst, err)
	}
	inst.module = mod

	if owner, taken := m.registry.byBoundary(mod.Boundary()); taken {
		closeModule(mod, logger)
		return m.fail(inst, fmt.Errorf("boundary %q is already owned by module %s", mod.Boundary(), owner.config.Name))
	}

	if err := m.contribute(inst); err != nil {
		closeModule(mod, logger)
		return m.fail(inst, err)
	}

	inst.enabled = true
	begin := time.Now()
	if err := m.host.OnModuleEnable(ctx, mod); err != nil {
		// components that did start stay bound until the module is disabled
		closeModule(mod, logger)
		return m.fail(inst, err)
	}

	inst.status = StatusLoaded
	m.metrics.SetStatus(mc.Name, inst.status.String(), allStatuses)
	logger.Info("Loaded module %s (type: %s, took %dms)", mc.Name, mc.Type, time.Since(begin).Milliseconds())
	return nil
}

// build runs the factory and the version gate.
func (m *Manager) build(mc config.ModuleConfig) (Module, error) {
	factory, ok := m.factories.Get(mc.Type)
	if !ok {
		return nil, fmt.Errorf("no factory registered for module type %q", mc.Type)
	}

	mod, err := factory(mc.Name, mc.Config)
	if err != nil {
		return nil, fmt.Errorf("create module %s (type: %s): %w", mc.Name, mc.Type, err)
	}
	if mod.Name() != mc.Name {
		return nil, fmt.Errorf("module %s reports name %q", mc.Name, mod.Name())
	}

	if err := m.validateVersion(mc, mod); err != nil {
		closeModule(mod, m.logger)
		return nil, err
	}
	return mod, nil
}

func (m *Manager) validateVersion(mc config.ModuleConfig, mod Module) error {
	if m.minVersion == nil {
		return nil
	}

	raw := mod.Metadata().Version
	if raw == "" {
		raw = mc.Version
	}
	if raw == "" {
		return fmt.Errorf("module %s declares no version (minimum %s)", mc.Name, m.minVersion)
	}

	v, err := version.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("module %s has invalid version %q: %w", mc.Name, raw, err)
	}
	if v.LessThan(m.minVersion) {
		return fmt.Errorf("module %s version %s is below minimum required version %s", mc.Name, v, m.minVersion)
	}
	return nil
}

func (m *Manager) contribute(inst *instance) error {
	c, ok := inst.module.(Contributor)
	if !ok || m.catalog == nil {
		return nil
	}

	err := m.catalog.Register(inst.module.Boundary(), contributionName(inst.config.Name), func() ([]container.Descriptor, error) {
		return c.Contribute()
	})
	if err != nil {
		return fmt.Errorf("add descriptors of module %s: %w", inst.config.Name, err)
	}
	inst.contributed = true
	return nil
}

func contributionName(module string) string {
	return "module:" + module
}

func (m *Manager) fail(inst *instance, err error) error {
	inst.status = StatusFailed
	inst.err = err
	m.metrics.SetStatus(inst.config.Name, inst.status.String(), allStatuses)
	m.logger.ErrorWithErr(fmt.Sprintf("Failed to load module %s", inst.config.Name), err)
	return fmt.Errorf("module %s: %w", inst.config.Name, err)
}

func (m *Manager) track(inst *instance) {
	if err := m.registry.add(inst); err != nil {
		// names are checked by the callers and unique in a valid manifest
		m.logger.Error("Failed to track module %s: %v", inst.config.Name, err)
	}
}

// disableLocked signals the host when the module was enabled, closes a
// loaded module and forgets the instance.
func (m *Manager) disableLocked(ctx context.Context, name string) error {
	inst, ok := m.registry.get(name)
	if !ok {
		return nil
	}

	var err error
	if inst.enabled {
		if err = m.host.OnModuleDisable(ctx, inst.module); err != nil {
			m.logger.ErrorWithErr(fmt.Sprintf("Disabling module %s left errors", name), err)
			err = fmt.Errorf("disable module %s: %w", name, err)
		}
		inst.enabled = false
	}
	if inst.contributed {
		m.catalog.Unregister(inst.module.Boundary(), contributionName(name))
		inst.contributed = false
	}
	if inst.module != nil && inst.status == StatusLoaded {
		closeModule(inst.module, m.logger)
	}

	m.registry.remove(name)
	m.metrics.Forget(name)
	m.logger.Debug("Disabled module %s", name)
	return err
}

func closeModule(mod Module, logger *logging.Logger) {
	closer, ok := mod.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("Error closing module %s: %v", mod.Name(), err)
	}
}

// Status returns the status of the named instance.
func (m *Manager) Status(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.registry.get(name)
	if !ok {
		return 0, false
	}
	return inst.status, true
}

// Modules returns a snapshot of every known instance sorted by name.
func (m *Manager) Modules() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.registry.ordered()
	out := make([]Info, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Registry returns the instance registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}
