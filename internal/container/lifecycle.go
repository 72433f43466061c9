package container

import (
	"context"
	"fmt"
)

// PreInitializer is implemented by components with a PRE_INIT hook.
type PreInitializer interface {
	PreInit(ctx context.Context) error
}

// PostInitializer is implemented by components with a POST_INIT hook. The
// component is RUNNING once the hook returns without error.
type PostInitializer interface {
	PostInit(ctx context.Context) error
}

// PreDestroyer is implemented by components with a PRE_DESTROY hook.
type PreDestroyer interface {
	PreDestroy(ctx context.Context) error
}

// PostDestroyer is implemented by components with a POST_DESTROY hook.
type PostDestroyer interface {
	PostDestroy(ctx context.Context) error
}

// Closer releases resources held by a component. It runs between
// PRE_DESTROY and POST_DESTROY, and on instances whose registration failed.
type Closer interface {
	Close() error
}

// Conditional lets a constructed component opt out of registration.
type Conditional interface {
	ShouldInitialize() bool
}

// Phase is a step of the component lifecycle.
type Phase int

const (
	PhaseConstruct Phase = iota
	PhasePreInit
	PhasePostInit
	PhasePreDestroy
	PhasePostDestroy
)

func (p Phase) String() string {
	switch p {
	case PhaseConstruct:
		return "CONSTRUCT"
	case PhasePreInit:
		return "PRE_INIT"
	case PhasePostInit:
		return "POST_INIT"
	case PhasePreDestroy:
		return "PRE_DESTROY"
	case PhasePostDestroy:
		return "POST_DESTROY"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// advance runs the hook for phase on rec and moves its state. The error,
// if any, is recorded on rec and returned as a *HookError.
func advance(ctx context.Context, rec *Record, phase Phase) error {
	var err error
	switch phase {
	case PhasePreInit:
		if err = rec.transition(StatePreInit); err == nil {
			if h, ok := rec.instance.(PreInitializer); ok {
				err = callHook(func() error { return h.PreInit(ctx) })
			}
		}
	case PhasePostInit:
		if err = rec.transition(StatePostInit); err == nil {
			if h, ok := rec.instance.(PostInitializer); ok {
				err = callHook(func() error { return h.PostInit(ctx) })
			}
			if err == nil {
				err = rec.transition(StateRunning)
			}
		}
	case PhasePreDestroy:
		if err = rec.transition(StatePreDestroy); err == nil {
			if h, ok := rec.instance.(PreDestroyer); ok {
				err = callHook(func() error { return h.PreDestroy(ctx) })
			}
		}
	case PhasePostDestroy:
		if err = rec.transition(StatePostDestroy); err == nil {
			if h, ok := rec.instance.(PostDestroyer); ok {
				err = callHook(func() error { return h.PostDestroy(ctx) })
			}
		}
		rec.forceClose()
	default:
		err = fmt.Errorf("phase %s has no hook", phase)
	}

	if err != nil {
		herr := &HookError{Key: rec.key, Phase: phase, Err: err}
		rec.fail(herr)
		return herr
	}
	return nil
}

// closeInstance calls Close on instances implementing Closer.
func closeInstance(instance any) error {
	c, ok := instance.(Closer)
	if !ok {
		return nil
	}
	return callHook(c.Close)
}

func callHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
