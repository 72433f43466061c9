package metadata

import (
	"context"
	"testing"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/controller/inject"
	"github.com/moolen/hearth/internal/controller/subscribe"
	"github.com/moolen/hearth/internal/discovery"
	"github.com/moolen/hearth/internal/eventbus"
	"github.com/moolen/hearth/internal/module"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// otherModule lives on its own empty boundary.
type otherModule struct{}

func (otherModule) Name() string     { return "other" }
func (otherModule) Boundary() string { return "other" }

func TestNewModuleValues(t *testing.T) {
	mod, err := NewModule("notes", map[string]interface{}{
		"values": map[string]interface{}{"region": "eu", "shards": 3},
	})
	require.NoError(t, err)
	descs, err := mod.(*Module).Contribute()
	require.NoError(t, err)
	require.Len(t, descs, 1)
	seed := descs[0].Instance.(*Seed)
	assert.Equal(t, map[string]string{"region": "eu", "shards": "3"}, seed.Values)

	_, err = NewModule("notes", map[string]interface{}{"values": "nope"})
	assert.Error(t, err)
}

func TestStoreOperations(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	require.NoError(t, s.PreInit(context.Background()))

	s.Set("b", "2")
	s.Set("a", "1")
	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, []string{"a", "b"}, s.Keys())

	snap := s.Snapshot()
	snap["a"] = "changed"
	v, _ = s.Get("a")
	assert.Equal(t, "1", v)

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	require.NoError(t, s.Close())
	assert.Empty(t, s.Keys())
}

func TestMetadataModuleSeedsAndTracksModules(t *testing.T) {
	catalog := discovery.NewCatalog()
	require.NoError(t, catalog.Register(Boundary, "metadata.store", Descriptors))

	bus := eventbus.New()
	c := container.New(
		container.WithScanner(discovery.NewScanner(catalog, discovery.WithInline(true))),
		container.WithExecutor(container.InlineExecutor{}),
		container.WithPublisher(bus),
	)
	require.NoError(t, c.UseControllers(inject.New(c), subscribe.New(bus)))

	factories := module.NewFactoryRegistry()
	require.NoError(t, factories.Register(ModuleType, NewModule))
	m, err := module.NewManager(module.ManagerConfig{}, c,
		module.WithFactories(factories), module.WithCatalog(catalog))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Enable(ctx, config.ModuleConfig{
		Name: "notes", Type: ModuleType, Enabled: true,
		Config: map[string]interface{}{"values": map[string]interface{}{"owner": "ops"}},
	}))

	store, ok := container.Resolve[*Store](c)
	require.True(t, ok)
	v, _ := store.Get("owner")
	assert.Equal(t, "ops", v)

	// events published after the store registered reach it
	require.NoError(t, c.OnModuleEnable(ctx, otherModule{}))
	v, _ = store.Get("module.other")
	assert.Equal(t, "enabled", v)
	require.NoError(t, c.OnModuleDisable(ctx, otherModule{}))
	v, _ = store.Get("module.other")
	assert.Equal(t, "disabled", v)

	require.NoError(t, m.Disable(ctx, "notes"))
	assert.False(t, c.IsRegisteredObject(container.KeyOf[*Store]()))
	assert.Equal(t, 0, bus.HandlerCount(container.ModuleEnabled{}))
}
