package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/moolen/hearth/internal/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alpha struct{}
type beta struct{}
type gamma struct{}

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Descriptors("timer", "a"))
	require.NoError(t, c.Descriptors("timer", "b"))
	require.NoError(t, c.Descriptors("metadata", "a"))

	err := c.Descriptors("timer", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, c.Register("", "x", func() ([]container.Descriptor, error) { return nil, nil }))
	assert.Error(t, c.Register("timer", "", func() ([]container.Descriptor, error) { return nil, nil }))
	assert.Error(t, c.Register("timer", "nil", nil))

	assert.Equal(t, []string{"metadata", "timer"}, c.Boundaries())
	assert.Equal(t, []string{"a", "b"}, c.Providers("timer"))
}

func TestScanner_KeepsProviderOrder(t *testing.T) {
	for _, tt := range []struct {
		name   string
		inline bool
	}{
		{name: "threaded"},
		{name: "inline", inline: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalog()
			require.NoError(t, c.Descriptors("b", "first", container.Supply(&alpha{}), container.Supply(&beta{})))
			require.NoError(t, c.Descriptors("b", "second", container.Supply(&gamma{})))
			require.NoError(t, c.Descriptors("other", "x", container.Supply(&alpha{})))

			res := NewScanner(c, WithInline(tt.inline)).Scan(context.Background(), "b").Wait()
			require.NoError(t, res.Err)

			var keys []container.Key
			for _, d := range res.Descriptors {
				keys = append(keys, d.Key)
			}
			assert.Equal(t, []container.Key{
				container.KeyOf[*alpha](), container.KeyOf[*beta](), container.KeyOf[*gamma](),
			}, keys)
		})
	}
}

func TestScanner_UnknownBoundaryIsEmpty(t *testing.T) {
	res := NewScanner(NewCatalog()).Scan(context.Background(), "nothing").Wait()
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Descriptors)
}

func TestScanner_ProviderFailure(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Descriptors("b", "ok", container.Supply(&alpha{})))
	require.NoError(t, c.Register("b", "broken", func() ([]container.Descriptor, error) {
		return nil, errors.New("bad manifest")
	}))
	require.NoError(t, c.Register("b", "panics", func() ([]container.Descriptor, error) {
		panic("nil catalog")
	}))

	res := NewScanner(c, WithInline(true)).Scan(context.Background(), "b").Wait()
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "broken")
	assert.Empty(t, res.Descriptors)
}

func TestScanner_CancelledContext(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Descriptors("b", "ok", container.Supply(&alpha{})))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewScanner(c).Scan(ctx, "b").Wait()
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestScanner_FeedsContainer(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Descriptors("framework", "core", container.Supply(&alpha{})))
	require.NoError(t, c.Descriptors("m", "mod",
		container.Supply(&beta{}, container.Hard[*alpha]()),
		container.Supply(&gamma{}, container.Hard[*beta]()),
	))

	ctr := container.New(container.WithScanner(NewScanner(c)))
	require.NoError(t, ctr.Init(context.Background()))
	require.NoError(t, ctr.OnModuleEnable(context.Background(), module("m")))

	assert.True(t, ctr.IsRegisteredObject(container.KeyOf[*alpha](), container.KeyOf[*beta](), container.KeyOf[*gamma]()))
	assert.Len(t, ctr.Registry().FindBoundTo("m"), 2)
}

func TestScanner_ScanFailureSurfacesAsContainerError(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("m", "broken", func() ([]container.Descriptor, error) {
		return nil, errors.New("corrupt")
	}))
	ctr := container.New(container.WithScanner(NewScanner(c)))

	err := ctr.OnModuleEnable(context.Background(), module("m"))
	assert.ErrorIs(t, err, container.ErrScanFailure)
}

type module string

func (m module) Name() string     { return string(m) }
func (m module) Boundary() string { return string(m) }

func TestCatalog_Unregister(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Descriptors("timer", "a"))
	require.NoError(t, c.Descriptors("timer", "b"))
	require.NoError(t, c.Descriptors("metadata", "a"))

	assert.True(t, c.Unregister("timer", "a"))
	assert.False(t, c.Unregister("timer", "a"))
	assert.Equal(t, []string{"b"}, c.Providers("timer"))

	assert.True(t, c.Unregister("metadata", "a"))
	assert.Equal(t, []string{"timer"}, c.Boundaries())

	// the name is free again
	assert.NoError(t, c.Descriptors("timer", "a"))
}

func TestCatalog_CloneIsIndependent(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Descriptors("timer", "a"))

	clone := c.Clone()
	require.NoError(t, clone.Descriptors("framework", "eventbus"))
	require.NoError(t, c.Descriptors("timer", "b"))

	assert.Equal(t, []string{"a"}, clone.Providers("timer"))
	assert.Equal(t, []string{"framework", "timer"}, clone.Boundaries())
	assert.Equal(t, []string{"timer"}, c.Boundaries())
}
