package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// registerBatch constructs, wires and registers descs, then runs PRE_INIT
// and POST_INIT over the registered records as two joined batches. Each
// failing component is rolled back on its own; the survivors are returned
// together with the joined failures.
func (c *Container) registerBatch(ctx context.Context, module string, descs []Descriptor) ([]*Record, error) {
	batchID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "container.register", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.String("module", module),
		attribute.Int("batch.size", len(descs)),
	))
	defer span.End()

	var errs []error
	prepared := make([]*Record, 0, len(descs))
	for _, desc := range orderDescriptors(descs) {
		rec, err := c.prepare(ctx, desc, module)
		if err != nil {
			c.logger.Error("Failed to register %s: %v", desc.Key, err)
			errs = append(errs, err)
			continue
		}
		if rec != nil {
			prepared = append(prepared, rec)
		}
	}

	prepared, errs = c.initBatch(ctx, PhasePreInit, module, prepared, errs)
	prepared, errs = c.initBatch(ctx, PhasePostInit, module, prepared, errs)

	err := joinErrors(errs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return prepared, err
}

// prepare checks dependencies, constructs the instance, runs the controller
// pipeline and registers the record. It returns a nil record and nil error
// for components that are skipped.
func (c *Container) prepare(ctx context.Context, desc Descriptor, module string) (*Record, error) {
	if err := desc.Validate(); err != nil {
		return nil, &RegistrationError{Key: desc.Key, Module: module, Err: err}
	}

	for _, dep := range desc.Dependencies {
		if c.registry.IsFullyRegistered(dep.Key) {
			continue
		}
		switch dep.Policy {
		case DependencyHard:
			c.logger.Error("Couldn't find the dependency %s for %s", dep.Key, desc.Key)
			return nil, &RegistrationError{
				Key:    desc.Key,
				Module: module,
				Err:    fmt.Errorf("%w: %s", ErrMissingHardDependency, dep.Key),
			}
		case DependencySoft:
			c.verbose("Skipping %s: dependency %s is not registered", desc.Key, dep.Key)
			return nil, nil
		}
	}

	if c.registry.Exists(desc.Key) {
		return nil, &RegistrationError{Key: desc.Key, Module: module, Err: ErrDuplicateRegistration}
	}

	instance, err := desc.construct()
	if err != nil {
		c.metrics.HookFailure(PhaseConstruct.String())
		return nil, &RegistrationError{
			Key:    desc.Key,
			Module: module,
			Err:    &HookError{Key: desc.Key, Phase: PhaseConstruct, Err: err},
		}
	}

	if cond, ok := instance.(Conditional); ok && !cond.ShouldInitialize() {
		c.verbose("Skipping %s: opted out of initialization", desc.Key)
		c.closeDiscarded(desc.Key, instance)
		return nil, nil
	}

	rec := c.registry.NewRecord(desc.Key, instance, desc.Dependencies...)
	// not yet shared, so the binding can be set without the registry lock
	rec.module = module

	if err := c.applyControllers(ctx, rec, c.controllerSnapshot()); err != nil {
		c.metrics.HookFailure(PhaseConstruct.String())
		c.discard(rec)
		return nil, &RegistrationError{Key: desc.Key, Module: module, Err: err}
	}

	if err := c.registry.Register(rec, true); err != nil {
		c.discard(rec)
		c.releaseControllers(ctx, rec)
		return nil, err
	}

	c.metrics.ComponentRegistered()
	if module != "" {
		c.verbose("Component %s is now bound to module %s", rec.key, module)
	} else {
		c.verbose("Component %s registered", rec.key)
	}
	c.publish(ctx, ComponentRegistered{Key: rec.key, Module: module})
	return rec, nil
}

// initBatch runs phase over recs, rolls back every record that failed and
// returns the records still registered.
func (c *Container) initBatch(ctx context.Context, phase Phase, module string, recs []*Record, errs []error) ([]*Record, []error) {
	if len(recs) == 0 {
		return recs, errs
	}

	_ = c.lifeCycle(ctx, phase, recs)

	for _, rec := range recs {
		if err := rec.Err(); err != nil {
			errs = append(errs, &RegistrationError{Key: rec.key, Module: module, Err: err})
			c.rollback(ctx, rec)
		}
	}

	survivors := recs[:0]
	for _, rec := range recs {
		current, ok := c.registry.Lookup(rec.key)
		if ok && current == rec && rec.Err() == nil {
			survivors = append(survivors, rec)
		} else if rec.Err() == nil {
			c.logger.Warn("Component %s removed because a dependency failed %s", rec.key, phase)
		}
	}
	return survivors, errs
}

// rollback removes a record whose initialization failed: dependents are torn
// down, the instance is closed and the binding dropped.
func (c *Container) rollback(ctx context.Context, rec *Record) {
	if rec.State().Terminal() {
		// already torn down as a dependent of another failed record
		return
	}
	removed := c.registry.Unregister(rec, c.teardownFunc(ctx, fmt.Sprintf("%s failing to initialize", rec.key)))
	c.metrics.ComponentsUnregistered(len(removed))
	_ = c.closeRecord(rec)
	rec.forceClose()
	c.releaseControllers(ctx, rec)
	c.registry.Unbind(rec)
}

// discard closes an instance that never entered the registry.
func (c *Container) discard(rec *Record) {
	c.closeDiscarded(rec.key, rec.instance)
	rec.forceClose()
}

func (c *Container) closeDiscarded(key Key, instance any) {
	if err := closeInstance(instance); err != nil {
		c.logger.Error("Error while closing %s: %v", key, err)
	}
}

// orderDescriptors puts every descriptor after the descriptors of the same
// batch it depends on, keeping the scan order otherwise.
func orderDescriptors(descs []Descriptor) []Descriptor {
	index := make(map[Key]int, len(descs))
	for i, d := range descs {
		if _, dup := index[d.Key]; !dup {
			index[d.Key] = i
		}
	}

	visited := make([]bool, len(descs))
	sorted := make([]Descriptor, 0, len(descs))

	var visit func(i int)
	visit = func(i int) {
		visited[i] = true
		for _, dep := range descs[i].Dependencies {
			if j, ok := index[dep.Key]; ok && !visited[j] {
				visit(j)
			}
		}
		sorted = append(sorted, descs[i])
	}

	for i := range descs {
		if !visited[i] {
			visit(i)
		}
	}
	return sorted
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
