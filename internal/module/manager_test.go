package module

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/discovery"
	"github.com/moolen/hearth/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifest(mods ...config.ModuleConfig) *config.ModulesFile {
	return &config.ModulesFile{SchemaVersion: "v1", Modules: mods}
}

func fake(name string, enabled bool) config.ModuleConfig {
	return config.ModuleConfig{Name: name, Type: "fake", Enabled: enabled}
}

func TestFactoryRegistry(t *testing.T) {
	r := NewFactoryRegistry()
	f := func(string, map[string]interface{}) (Module, error) { return nil, nil }

	require.NoError(t, r.Register("timer", f))
	require.NoError(t, r.Register("metadata", f))
	assert.Error(t, r.Register("timer", f))
	assert.Error(t, r.Register("", f))
	assert.Error(t, r.Register("nil", nil))

	_, ok := r.Get("timer")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"metadata", "timer"}, r.List())
}

func TestManager_ApplyEnablesInManifestOrder(t *testing.T) {
	host := newFakeHost()
	m := newTestManager(t, ManagerConfig{}, host)

	err := m.Apply(context.Background(), manifest(fake("b", true), fake("a", true), fake("off", false)))
	require.NoError(t, err)

	assert.Equal(t, []string{"enable:b", "enable:a"}, host.log())
	st, ok := m.Status("off")
	require.True(t, ok)
	assert.Equal(t, StatusDisabled, st)

	infos := m.Modules()
	require.Len(t, infos, 3)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "loaded", infos[0].Status)
	assert.NotEmpty(t, infos[0].Session)
	assert.Equal(t, []string{"a", "b", "off"}, m.Registry().List())
}

func TestManager_ReconcileDisablesRemovedAndChanged(t *testing.T) {
	host := newFakeHost()
	factories, built := fakeFactories(t)
	m, err := NewManager(ManagerConfig{}, host, WithFactories(factories), WithCatalog(discovery.NewCatalog()))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, manifest(fake("a", true), fake("b", true), fake("c", true))))
	first := built.get("b")

	changed := fake("b", true)
	changed.Config = map[string]interface{}{"boundary": "elsewhere"}
	require.NoError(t, m.Apply(ctx, manifest(fake("a", true), changed, fake("c", false))))

	assert.Equal(t, []string{
		"enable:a", "enable:b", "enable:c",
		"disable:c", "disable:b",
		"enable:b",
	}, host.log())
	assert.Equal(t, int32(1), first.closed.Load(), "replaced module is closed")
	assert.NotSame(t, first, built.get("b"))

	st, _ := m.Status("c")
	assert.Equal(t, StatusDisabled, st)

	// a disabled entry that reappears enabled is enabled
	require.NoError(t, m.Apply(ctx, manifest(fake("a", true), changed, fake("c", true))))
	st, _ = m.Status("c")
	assert.Equal(t, StatusLoaded, st)
}

func TestManager_FailedEnableMarksModuleFailed(t *testing.T) {
	host := newFakeHost()
	host.failFor["bad"] = errors.New("component refused")
	factories, built := fakeFactories(t)
	m, err := NewManager(ManagerConfig{}, host, WithFactories(factories), WithCatalog(discovery.NewCatalog()))
	require.NoError(t, err)
	ctx := context.Background()

	err = m.Apply(ctx, manifest(fake("good", true), fake("bad", true), fake("later", true)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "component refused")

	st, _ := m.Status("bad")
	assert.Equal(t, StatusFailed, st)
	for _, name := range []string{"good", "later"} {
		st, _ := m.Status(name)
		assert.Equal(t, StatusLoaded, st, name)
	}
	assert.Equal(t, int32(1), built.get("bad").closed.Load(), "module closed after failed enable")

	// the failed module is still signalled on disable so its partial components go away
	require.NoError(t, m.Disable(ctx, "bad"))
	assert.Contains(t, host.log(), "disable:bad")
	assert.Equal(t, int32(1), built.get("bad").closed.Load(), "failed module is not closed twice")
	_, known := m.Status("bad")
	assert.False(t, known)
}

func TestManager_BuildFailures(t *testing.T) {
	host := newFakeHost()
	m := newTestManager(t, ManagerConfig{}, host)

	err := m.Apply(context.Background(), manifest(
		config.ModuleConfig{Name: "x", Type: "unknown", Enabled: true},
		config.ModuleConfig{Name: "y", Type: "broken", Enabled: true},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no factory registered")
	assert.Contains(t, err.Error(), "bad config")
	assert.Empty(t, host.log(), "host never signalled for modules that did not build")

	infos := m.Modules()
	require.Len(t, infos, 2)
	assert.Equal(t, "failed", infos[0].Status)
	assert.NotEmpty(t, infos[0].Error)

	require.NoError(t, m.Stop(context.Background()))
	assert.Empty(t, host.log())
	assert.Empty(t, m.Modules())
}

func TestManager_MinVersionGate(t *testing.T) {
	tests := []struct {
		name     string
		module   config.ModuleConfig
		wantFail bool
	}{
		{name: "newer", module: config.ModuleConfig{Name: "a", Type: "fake", Enabled: true, Config: map[string]interface{}{"version": "2.1.0"}}},
		{name: "equal", module: config.ModuleConfig{Name: "a", Type: "fake", Enabled: true, Version: "1.2.0"}},
		{name: "older", module: config.ModuleConfig{Name: "a", Type: "fake", Enabled: true, Version: "1.1.9"}, wantFail: true},
		{name: "missing", module: config.ModuleConfig{Name: "a", Type: "fake", Enabled: true}, wantFail: true},
		{name: "module version wins", module: config.ModuleConfig{Name: "a", Type: "fake", Enabled: true, Version: "9.0.0", Config: map[string]interface{}{"version": "1.0.0"}}, wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			m := newTestManager(t, ManagerConfig{MinVersion: "1.2.0"}, host)
			err := m.Apply(context.Background(), manifest(tt.module))
			st, _ := m.Status("a")
			if tt.wantFail {
				assert.Error(t, err)
				assert.Equal(t, StatusFailed, st)
				assert.Empty(t, host.log())
			} else {
				assert.NoError(t, err)
				assert.Equal(t, StatusLoaded, st)
			}
		})
	}
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(ManagerConfig{}, nil)
	assert.Error(t, err)
	_, err = NewManager(ManagerConfig{MinVersion: "not-a-version"}, newFakeHost())
	assert.Error(t, err)
}

func TestManager_BoundaryConflict(t *testing.T) {
	host := newFakeHost()
	m := newTestManager(t, ManagerConfig{}, host)

	shared := map[string]interface{}{"boundary": "timer"}
	err := m.Apply(context.Background(), manifest(
		config.ModuleConfig{Name: "one", Type: "fake", Enabled: true, Config: shared},
		config.ModuleConfig{Name: "two", Type: "fake", Enabled: true, Config: shared},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already owned by module one")
	assert.Equal(t, []string{"enable:one"}, host.log())
}

func TestManager_EnableDisable(t *testing.T) {
	host := newFakeHost()
	m := newTestManager(t, ManagerConfig{}, host)
	ctx := context.Background()

	require.NoError(t, m.Enable(ctx, fake("a", true)))
	assert.Error(t, m.Enable(ctx, fake("a", true)))
	require.NoError(t, m.Disable(ctx, "a"))
	assert.Error(t, m.Disable(ctx, "a"))
	assert.Equal(t, []string{"enable:a", "disable:a"}, host.log())
}

func TestManager_StopDisablesInReverseOrder(t *testing.T) {
	host := newFakeHost()
	m := newTestManager(t, ManagerConfig{}, host)
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, manifest(fake("a", true), fake("b", true), fake("c", true))))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []string{
		"enable:a", "enable:b", "enable:c",
		"disable:c", "disable:b", "disable:a",
	}, host.log())
	assert.Empty(t, m.Modules())
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mm := metrics.NewModules(reg)
	host := newFakeHost()
	host.failFor["bad"] = errors.New("nope")
	m := newTestManager(t, ManagerConfig{}, host, WithMetrics(mm))
	ctx := context.Background()

	_ = m.Apply(ctx, manifest(fake("good", true), fake("bad", true)))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.Status.WithLabelValues("good", "loaded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(mm.Status.WithLabelValues("good", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.Status.WithLabelValues("bad", "failed")))

	require.NoError(t, m.Disable(ctx, "good"))
	// only the three series of "bad" remain
	assert.Equal(t, 3, testutil.CollectAndCount(mm.Status))
}

// Components found under a module boundary in a real container.
type (
	widgetA struct{}
	widgetB struct{}
	widgetC struct{}
)

func (*widgetC) PreInit(context.Context) error { return errors.New("widget C cannot start") }

func TestManager_PartialEnableLeavesSurvivorsAndMarksFailed(t *testing.T) {
	catalog := discovery.NewCatalog()
	require.NoError(t, catalog.Descriptors("widgets", "widgets",
		container.Supply(&widgetA{}),
		container.Supply(&widgetB{}),
		container.Supply(&widgetC{}),
	))
	c := container.New(
		container.WithScanner(discovery.NewScanner(catalog, discovery.WithInline(true))),
		container.WithExecutor(container.InlineExecutor{}),
	)

	factories, _ := fakeFactories(t)
	m, err := NewManager(ManagerConfig{}, c, WithFactories(factories), WithCatalog(catalog))
	require.NoError(t, err)
	ctx := context.Background()

	mc := fake("w", true)
	mc.Config = map[string]interface{}{"boundary": "widgets"}
	err = m.Apply(ctx, manifest(mc))
	require.Error(t, err)
	assert.ErrorIs(t, err, container.ErrLifecycleHookFailure)

	st, _ := m.Status("w")
	assert.Equal(t, StatusFailed, st)
	keyA, keyB, keyC := container.KeyOf[*widgetA](), container.KeyOf[*widgetB](), container.KeyOf[*widgetC]()
	assert.True(t, c.IsRegisteredObject(keyA, keyB))
	assert.False(t, c.IsRegisteredObject(keyC))

	require.NoError(t, m.Disable(ctx, "w"))
	assert.False(t, c.IsRegisteredObject(keyA))
	assert.False(t, c.IsRegisteredObject(keyB))
}

type moduleSettings struct{ Interval time.Duration }

func TestManager_ContributorDescriptorsFollowTheModule(t *testing.T) {
	catalog := discovery.NewCatalog()
	c := container.New(
		container.WithScanner(discovery.NewScanner(catalog, discovery.WithInline(true))),
		container.WithExecutor(container.InlineExecutor{}),
	)
	factories := NewFactoryRegistry()
	require.NoError(t, factories.Register("settings", func(name string, cfg map[string]interface{}) (Module, error) {
		return contributingModule{&fakeModule{
			name:     name,
			boundary: "settings",
			contrib:  []container.Descriptor{container.Supply(&moduleSettings{Interval: time.Second})},
		}}, nil
	}))
	m, err := NewManager(ManagerConfig{}, c, WithFactories(factories), WithCatalog(catalog))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Enable(ctx, config.ModuleConfig{Name: "s", Type: "settings", Enabled: true}))
	got, ok := container.Resolve[*moduleSettings](c)
	require.True(t, ok)
	assert.Equal(t, time.Second, got.Interval)
	assert.Equal(t, []string{"module:s"}, catalog.Providers("settings"))

	require.NoError(t, m.Disable(ctx, "s"))
	assert.Empty(t, catalog.Providers("settings"))
	_, ok = container.Resolve[*moduleSettings](c)
	assert.False(t, ok)
}

func TestManager_StartWithoutManifest(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, newFakeHost())
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, "module-manager", m.Name())
}

func TestManager_StartLoadsManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, config.WriteModulesFile(path, manifest(fake("a", true))))

	host := newFakeHost()
	m := newTestManager(t, ManagerConfig{ManifestPath: path}, host)
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, []string{"enable:a"}, host.log())
	require.NoError(t, m.Stop(context.Background()))
}

func TestManager_StartFailsOnMissingManifest(t *testing.T) {
	m := newTestManager(t, ManagerConfig{ManifestPath: filepath.Join(t.TempDir(), "none.yaml")}, newFakeHost())
	assert.Error(t, m.Start(context.Background()))
}

func TestManager_HotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, config.WriteModulesFile(path, manifest(fake("a", true), fake("b", true))))

	reg := prometheus.NewRegistry()
	mm := metrics.NewModules(reg)
	host := newFakeHost()
	m := newTestManager(t, ManagerConfig{ManifestPath: path, Watch: true, DebounceMillis: 50}, host, WithMetrics(mm))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	require.NoError(t, config.WriteModulesFile(path, manifest(fake("a", true), fake("b", false))))

	require.Eventually(t, func() bool {
		st, _ := m.Status("b")
		return st == StatusDisabled
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, host.log(), "disable:b")
	// the initial load counts as the first reload
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(mm.Reloads.WithLabelValues("ok")) == 2
	}, time.Second, 10*time.Millisecond)
}
