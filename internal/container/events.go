package container

import "context"

// Publisher delivers container events. eventbus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, event any)
}

// ComponentRegistered is published after a component entered the registry.
type ComponentRegistered struct {
	Key    Key
	Module string
}

// ModuleEnabled is published once every batch of a module enable has
// finished successfully.
type ModuleEnabled struct {
	Module     string
	Components int
}

// ModuleDisabled is published after every component bound to a module has
// been torn down.
type ModuleDisabled struct {
	Module     string
	Components int
}

// ServicesInitialized is published at the end of Init, once the framework
// components are running.
type ServicesInitialized struct {
	Components int
}

func (c *Container) publish(ctx context.Context, event any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, event)
}
