package container

import (
	"context"
)

// Controller is a wiring strategy applied to every component after
// construction and before PRE_INIT, in the order the container was given.
// Release runs at the end of teardown, after POST_DESTROY, for each
// controller whose Apply succeeded.
type Controller interface {
	Name() string
	Apply(ctx context.Context, rec *Record) error
	Release(ctx context.Context, rec *Record) error
}

// applyControllers runs ctrls in order. On failure the controllers already
// applied are released in reverse order and a *HookError is returned.
func (c *Container) applyControllers(ctx context.Context, rec *Record, ctrls []Controller) error {
	applied := make([]Controller, 0, len(ctrls))
	for _, ctrl := range ctrls {
		if err := callHook(func() error { return ctrl.Apply(ctx, rec) }); err != nil {
			rec.setApplied(applied)
			c.releaseControllers(ctx, rec)
			herr := &HookError{Key: rec.key, Phase: PhaseConstruct, Controller: ctrl.Name(), Err: err}
			rec.fail(herr)
			return herr
		}
		applied = append(applied, ctrl)
	}
	rec.setApplied(applied)
	return nil
}

// releaseControllers releases applied controllers in reverse order. Failures
// are logged and do not stop the remaining releases.
func (c *Container) releaseControllers(ctx context.Context, rec *Record) {
	applied := rec.takeApplied()
	for i := len(applied) - 1; i >= 0; i-- {
		ctrl := applied[i]
		if err := callHook(func() error { return ctrl.Release(ctx, rec) }); err != nil {
			c.logger.Error("Controller %s failed to release %s: %v", ctrl.Name(), rec.key, err)
			c.metrics.HookFailure(PhasePreDestroy.String())
		}
	}
}
