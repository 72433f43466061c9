// Package subscribe provides the controller registering event handlers of
// components implementing eventbus.Subscriber for as long as the component
// is registered.
package subscribe

import (
	"context"
	"sync"

	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/eventbus"
	"github.com/moolen/hearth/internal/logging"
)

// Bus is the part of eventbus.Bus the controller needs.
type Bus interface {
	Subscribe(sub eventbus.Subscription) (unsubscribe func())
}

// Controller wires eventbus subscriptions.
type Controller struct {
	bus    Bus
	mu     sync.Mutex
	active map[*container.Record][]func()
	logger *logging.Logger
}

// New creates a subscribe controller for bus.
func New(bus Bus) *Controller {
	return &Controller{
		bus:    bus,
		active: make(map[*container.Record][]func()),
		logger: logging.GetLogger("controller.subscribe"),
	}
}

// Name implements container.Controller.
func (c *Controller) Name() string {
	return "subscribe"
}

// Apply subscribes every handler the component declares.
func (c *Controller) Apply(_ context.Context, rec *container.Record) error {
	sub, ok := rec.Instance().(eventbus.Subscriber)
	if !ok {
		return nil
	}
	subs := sub.Subscriptions()
	cancels := make([]func(), 0, len(subs))
	for _, s := range subs {
		cancels = append(cancels, c.bus.Subscribe(s))
	}

	c.mu.Lock()
	c.active[rec] = cancels
	c.mu.Unlock()

	c.logger.Debug("Subscribed %d handlers for %s", len(cancels), rec.Key())
	return nil
}

// Release removes the component's handlers.
func (c *Controller) Release(_ context.Context, rec *container.Record) error {
	c.mu.Lock()
	cancels := c.active[rec]
	delete(c.active, rec)
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Active returns the number of components with live subscriptions.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
