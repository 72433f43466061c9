package subscribe

import (
	"context"
	"testing"

	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listener struct {
	enabled []string
}

func (l *listener) Subscriptions() []eventbus.Subscription {
	return []eventbus.Subscription{
		eventbus.On(func(_ context.Context, e container.ModuleEnabled) {
			l.enabled = append(l.enabled, e.Module)
		}),
	}
}

type testModule string

func (m testModule) Name() string     { return string(m) }
func (m testModule) Boundary() string { return string(m) }

func TestSubscribe_HandlersLiveWhileRegistered(t *testing.T) {
	bus := eventbus.New()
	ctrl := New(bus)
	scanner := container.ScannerFunc(func(context.Context, string) ([]container.Descriptor, error) {
		return nil, nil
	})
	c := container.New(
		container.WithExecutor(container.InlineExecutor{}),
		container.WithScanner(scanner),
		container.WithPublisher(bus),
		container.WithControllers(ctrl),
	)

	l := &listener{}
	_, err := c.RegisterObject(context.Background(), container.Supply(l))
	require.NoError(t, err)
	assert.Equal(t, 1, ctrl.Active())
	assert.Equal(t, 1, bus.HandlerCount(container.ModuleEnabled{}))

	require.NoError(t, c.OnModuleEnable(context.Background(), testModule("timer")))
	assert.Equal(t, []string{"timer"}, l.enabled)

	require.NoError(t, c.DisableObject(context.Background(), container.KeyOf[*listener]()))
	assert.Equal(t, 0, ctrl.Active())
	assert.Equal(t, 0, bus.HandlerCount(container.ModuleEnabled{}))

	require.NoError(t, c.OnModuleEnable(context.Background(), testModule("metadata")))
	assert.Equal(t, []string{"timer"}, l.enabled, "no delivery after teardown")
}

func TestSubscribe_NonSubscribersIgnored(t *testing.T) {
	ctrl := New(eventbus.New())
	rec := container.NewRegistry().NewRecord(container.KeyOf[*struct{}](), &struct{}{})
	require.NoError(t, ctrl.Apply(context.Background(), rec))
	assert.Equal(t, 0, ctrl.Active())
	assert.NoError(t, ctrl.Release(context.Background(), rec))
}
