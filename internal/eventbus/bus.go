// Package eventbus is a synchronous, type-routed event bus. Events are
// fire-and-forget notifications: handlers observe after the fact and cannot
// veto the operation that published them.
package eventbus

import (
	"context"
	"reflect"
	"sync"

	"github.com/moolen/hearth/internal/logging"
)

// Handler receives an event of the subscribed type.
type Handler func(ctx context.Context, event any)

// Subscription routes events of Type to Handler.
type Subscription struct {
	Type    reflect.Type
	Handler Handler
}

// On builds a subscription for events of type T.
//
//	eventbus.On(func(ctx context.Context, e container.ModuleEnabled) { ... })
func On[T any](fn func(ctx context.Context, event T)) Subscription {
	return Subscription{
		Type: reflect.TypeOf((*T)(nil)).Elem(),
		Handler: func(ctx context.Context, event any) {
			if e, ok := event.(T); ok {
				fn(ctx, e)
			}
		},
	}
}

// Subscriber is implemented by components that listen to events. The
// subscribe controller registers the returned subscriptions for the
// component's lifetime.
type Subscriber interface {
	Subscriptions() []Subscription
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to the handlers subscribed to their dynamic type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]entry
	nextID   uint64
	logger   *logging.Logger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]entry),
		logger:   logging.GetLogger("eventbus"),
	}
}

// Subscribe adds sub and returns the function removing it again.
func (b *Bus) Subscribe(sub Subscription) (unsubscribe func()) {
	if sub.Type == nil || sub.Handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[sub.Type] = append(b.handlers[sub.Type], entry{id: id, handler: sub.Handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.Type, id) })
	}
}

func (b *Bus) remove(t reflect.Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[t]
	for i, e := range entries {
		if e.id == id {
			b.handlers[t] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(b.handlers[t]) == 0 {
		delete(b.handlers, t)
	}
}

// Publish calls every handler subscribed to the type of event, in
// subscription order, on the calling goroutine. A panicking handler is
// logged and does not stop the others.
func (b *Bus) Publish(ctx context.Context, event any) {
	if event == nil {
		return
	}
	t := reflect.TypeOf(event)

	b.mu.RLock()
	entries := append([]entry(nil), b.handlers[t]...)
	b.mu.RUnlock()

	for _, e := range entries {
		b.dispatch(ctx, t, e.handler, event)
	}
}

func (b *Bus) dispatch(ctx context.Context, t reflect.Type, h Handler, event any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler for %s panicked: %v", t, r)
		}
	}()
	h(ctx, event)
}

// HandlerCount returns the number of handlers subscribed to events of the
// same type as sample.
func (b *Bus) HandlerCount(sample any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[reflect.TypeOf(sample)])
}
