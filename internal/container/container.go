// Package container implements the runtime component container: a registry
// and dependency graph of managed components, the lifecycle state machine
// driving them through batched, joined phases, the binding of components to
// extension modules, and the controller pipeline wiring each component after
// construction.
//
// A Container is constructed explicitly and handed to its collaborators:
//
//	c := container.New(
//	    container.WithScanner(discovery.NewScanner(discovery.Default())),
//	    container.WithShowLogs(cfg.Container.ShowLogs),
//	)
//	c.UseControllers(inject.New(c), subscribe.New(bus))
//	if err := c.Init(ctx); err != nil { ... }
//
// Extension modules are attached with OnModuleEnable and detached with
// OnModuleDisable. Both return only after every lifecycle batch for the
// module has been joined.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moolen/hearth/internal/logging"
	"github.com/moolen/hearth/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFrameworkBoundary is the boundary scanned by Init.
const DefaultFrameworkBoundary = "framework"

// Container owns the registry and runs lifecycle batches over it.
type Container struct {
	registry *Registry
	executor Executor
	scanner  Scanner
	bus      Publisher
	metrics  *metrics.Container
	tracer   trace.Tracer
	logger   *logging.Logger

	showLogs          bool
	frameworkBoundary string

	mu          sync.Mutex
	controllers []Controller
	initialized bool
	closed      bool
}

// Option configures a Container.
type Option func(*Container)

// WithScanner sets the discovery scanner.
func WithScanner(s Scanner) Option {
	return func(c *Container) { c.scanner = s }
}

// WithExecutor sets the batch executor.
func WithExecutor(e Executor) Option {
	return func(c *Container) { c.executor = e }
}

// WithSingleThreaded forces the inline executor when enabled.
func WithSingleThreaded(enabled bool) Option {
	return func(c *Container) { c.executor = DefaultExecutor(enabled) }
}

// WithControllers sets the controller pipeline, applied in the given order.
func WithControllers(ctrls ...Controller) Option {
	return func(c *Container) { c.controllers = append([]Controller(nil), ctrls...) }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(c *Container) { c.bus = p }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Container) Option {
	return func(c *Container) { c.metrics = m }
}

// WithTracer sets the tracer for batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Container) { c.tracer = t }
}

// WithShowLogs enables verbose per-component and timing logs at INFO.
func WithShowLogs(enabled bool) Option {
	return func(c *Container) { c.showLogs = enabled }
}

// WithFrameworkBoundary overrides the boundary scanned by Init.
func WithFrameworkBoundary(boundary string) Option {
	return func(c *Container) {
		if boundary != "" {
			c.frameworkBoundary = boundary
		}
	}
}

// New creates a container. Without options it uses the concurrent executor
// (or the inline one on single-CPU hosts), no scanner and no controllers.
func New(opts ...Option) *Container {
	c := &Container{
		registry:          NewRegistry(),
		executor:          DefaultExecutor(false),
		tracer:            otel.Tracer("github.com/moolen/hearth/internal/container"),
		logger:            logging.GetLogger("container"),
		frameworkBoundary: DefaultFrameworkBoundary,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseControllers appends controllers to the pipeline. Controllers that need
// the container itself are added this way after New. It fails once Init has
// run.
func (c *Container) UseControllers(ctrls ...Controller) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return fmt.Errorf("controllers must be added before Init")
	}
	c.controllers = append(c.controllers, ctrls...)
	return nil
}

// Registry returns the underlying registry.
func (c *Container) Registry() *Registry {
	return c.registry
}

// Name implements lifecycle.Service.
func (c *Container) Name() string {
	return "container"
}

// Start implements lifecycle.Service by calling Init.
func (c *Container) Start(ctx context.Context) error {
	return c.Init(ctx)
}

// Stop implements lifecycle.Service by calling Shutdown.
func (c *Container) Stop(ctx context.Context) error {
	return c.Shutdown(ctx)
}

// Init registers the container as a component of itself, scans the framework
// boundary and brings every discovered component to RUNNING. Calling Init
// again is a no-op.
func (c *Container) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrContainerClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.mu.Unlock()

	self := c.registry.NewRecord(KeyOf[*Container](), c)
	_ = self.transition(StateRunning)
	if err := c.registry.Register(self, false); err != nil {
		return err
	}
	c.metrics.ComponentRegistered()
	c.verbose("Container has been registered as component")

	if c.scanner != nil {
		descs, err := c.scan(ctx, c.frameworkBoundary)
		if err != nil {
			c.logger.Error("Error while scanning framework components: %v", err)
			return err
		}
		if _, err := c.registerBatch(ctx, "", descs); err != nil {
			return fmt.Errorf("framework components: %w", err)
		}
	}

	c.logger.Info("Container initialized with %d components", c.registry.Len())
	c.publish(ctx, ServicesInitialized{Components: c.registry.Len()})
	return nil
}

// Shutdown tears down every tracked component in reverse registration order:
// one PRE_DESTROY batch, close each, one POST_DESTROY batch. The registry is
// empty afterwards. Hook and close failures are logged and joined into the
// returned error.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	ordered := c.registry.Ordered()
	recs := make([]*Record, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		recs = append(recs, ordered[i])
	}

	errs := c.teardownGroup(ctx, recs, "framework being disabled")

	removed := c.registry.Clear()
	for _, rec := range removed {
		rec.forceClose()
	}
	c.metrics.ComponentsUnregistered(len(removed))
	c.logger.Info("Container stopped, %d components removed", len(removed))
	return errors.Join(errs...)
}

func (c *Container) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RegisterObject runs desc through the full registration path and returns
// the RUNNING record. A nil record with a nil error means the component was
// skipped (missing soft dependency or ShouldInitialize returned false).
func (c *Container) RegisterObject(ctx context.Context, desc Descriptor) (*Record, error) {
	if c.isClosed() {
		return nil, fmt.Errorf("register %s: %w", desc.Key, ErrContainerClosed)
	}
	recs, err := c.registerBatch(ctx, "", []Descriptor{desc})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// UnregisterObject removes the component under key together with every
// component depending on it. Dependents are torn down before they leave the
// registry. The component itself runs no destroy hooks and is not closed,
// but its controllers are released and its record ends CLOSED. The removed
// records are returned, descendants first.
func (c *Container) UnregisterObject(ctx context.Context, key Key) ([]*Record, error) {
	rec, ok := c.registry.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("unregister %s: %w", key, ErrNotRegistered)
	}
	removed := c.registry.Unregister(rec, c.teardownFunc(ctx, fmt.Sprintf("dependency %s being unregistered", key)))
	c.releaseControllers(ctx, rec)
	rec.forceClose()
	c.metrics.ComponentsUnregistered(len(removed))
	return removed, nil
}

// DisableObject tears down a single component: PRE_DESTROY, close,
// unregister with cascade, POST_DESTROY, release controllers.
func (c *Container) DisableObject(ctx context.Context, key Key) error {
	rec, ok := c.registry.Lookup(key)
	if !ok {
		return fmt.Errorf("disable %s: %w", key, ErrNotRegistered)
	}

	var errs []error
	if err := advance(ctx, rec, PhasePreDestroy); err != nil {
		c.hookFailed(rec, PhasePreDestroy, err)
		errs = append(errs, err)
	}
	if err := c.closeRecord(rec); err != nil {
		errs = append(errs, err)
	}
	removed := c.registry.Unregister(rec, c.teardownFunc(ctx, fmt.Sprintf("dependency %s being disabled", key)))
	c.metrics.ComponentsUnregistered(len(removed))
	if err := advance(ctx, rec, PhasePostDestroy); err != nil {
		c.hookFailed(rec, PhasePostDestroy, err)
		errs = append(errs, err)
	}
	c.releaseControllers(ctx, rec)
	return errors.Join(errs...)
}

// BindObject binds the component under key to module so it is torn down
// when the module is disabled.
func (c *Container) BindObject(key Key, module string) error {
	rec, ok := c.registry.Lookup(key)
	if !ok {
		return fmt.Errorf("bind %s: %w", key, ErrNotRegistered)
	}
	c.registry.Bind(rec, module)
	c.verbose("Component %s is now bound to module %s", key, module)
	return nil
}

// GetObjectDetails returns the record for key.
func (c *Container) GetObjectDetails(key Key) (*Record, bool) {
	return c.registry.Lookup(key)
}

// IsRegisteredObject reports whether every key is registered with a non-nil
// instance.
func (c *Container) IsRegisteredObject(keys ...Key) bool {
	return c.registry.IsFullyRegistered(keys...)
}

// Get returns the instance registered under key.
func (c *Container) Get(key Key) (any, bool) {
	rec, ok := c.registry.Lookup(key)
	if !ok || rec.instance == nil {
		return nil, false
	}
	return rec.instance, true
}

// Resolve returns the instance registered under the key of T.
func Resolve[T any](c *Container) (T, bool) {
	var zero T
	v, ok := c.Get(KeyOf[T]())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// OnModuleEnable scans the module boundary and registers everything found,
// bound to the module. Per-component failures are rolled back individually
// and joined into the returned error; the components that succeeded stay
// registered.
func (c *Container) OnModuleEnable(ctx context.Context, m Module) error {
	name := m.Name()
	if name == "" {
		return fmt.Errorf("module must have a non-empty name")
	}
	if c.isClosed() {
		return fmt.Errorf("enable module %s: %w", name, ErrContainerClosed)
	}

	descs, err := c.scan(ctx, m.Boundary())
	if err != nil {
		c.logger.Error("Module %s failed during scanning: %v", name, err)
		return fmt.Errorf("enable module %s: %w", name, err)
	}

	recs, err := c.registerBatch(ctx, name, descs)
	if err != nil {
		return fmt.Errorf("enable module %s: %w", name, err)
	}

	c.logger.Info("Module %s enabled with %d components", name, len(recs))
	c.publish(ctx, ModuleEnabled{Module: name, Components: len(recs)})
	return nil
}

// OnModuleDisable tears down every component bound to the module: one
// PRE_DESTROY batch, close each, one POST_DESTROY batch, then unregister
// each with cascade. All bound components are gone afterwards even if hooks
// fail; failures are logged and joined into the returned error.
func (c *Container) OnModuleDisable(ctx context.Context, m Module) error {
	name := m.Name()
	recs := c.registry.FindBoundTo(name)
	reason := fmt.Sprintf("module %s being disabled", name)

	errs := c.teardownGroup(ctx, recs, reason)

	teardown := c.teardownFunc(ctx, reason)
	removed := 0
	for _, rec := range recs {
		removed += len(c.registry.Unregister(rec, teardown))
		c.registry.Unbind(rec)
	}
	c.metrics.ComponentsUnregistered(removed)

	c.logger.Info("Module %s disabled, %d components removed", name, removed)
	c.publish(ctx, ModuleDisabled{Module: name, Components: removed})
	return errors.Join(errs...)
}

// teardownGroup runs PRE_DESTROY over recs as one batch, closes each, runs
// POST_DESTROY as one batch and then releases controllers. It never stops
// early.
func (c *Container) teardownGroup(ctx context.Context, recs []*Record, reason string) []error {
	if len(recs) == 0 {
		return nil
	}
	var errs []error
	if err := c.lifeCycle(ctx, PhasePreDestroy, recs); err != nil {
		errs = append(errs, err)
	}
	for _, rec := range recs {
		c.verbose("Component %s disabled, due to %s", rec.key, reason)
		if err := c.closeRecord(rec); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.lifeCycle(ctx, PhasePostDestroy, recs); err != nil {
		errs = append(errs, err)
	}
	for _, rec := range recs {
		c.releaseControllers(ctx, rec)
	}
	return errs
}

// teardownFunc destroys cascade victims that are not already closed.
func (c *Container) teardownFunc(ctx context.Context, reason string) func(*Record) {
	return func(rec *Record) {
		if rec.State().Terminal() {
			return
		}
		c.verbose("Component %s disabled, due to %s", rec.key, reason)
		c.destroy(ctx, rec)
	}
}

// destroy runs the single-record teardown sequence. A record another
// goroutine already started destroying is left alone.
func (c *Container) destroy(ctx context.Context, rec *Record) {
	if err := advance(ctx, rec, PhasePreDestroy); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return
		}
		c.hookFailed(rec, PhasePreDestroy, err)
	}
	_ = c.closeRecord(rec)
	if err := advance(ctx, rec, PhasePostDestroy); err != nil {
		c.hookFailed(rec, PhasePostDestroy, err)
	}
	c.releaseControllers(ctx, rec)
}

// closeRecord closes the instance. Controllers stay applied until
// POST_DESTROY has run.
func (c *Container) closeRecord(rec *Record) error {
	if err := closeInstance(rec.instance); err != nil {
		c.logger.Error("Error while closing %s: %v", rec.key, err)
		c.metrics.HookFailure("CLOSE")
		return fmt.Errorf("close %s: %w", rec.key, err)
	}
	return nil
}

func (c *Container) hookFailed(rec *Record, phase Phase, err error) {
	c.logger.Error("%s failed for %s: %v", phase, rec.key, err)
	c.metrics.HookFailure(phase.String())
}

// lifeCycle runs phase over recs as one batch and joins it.
func (c *Container) lifeCycle(ctx context.Context, phase Phase, recs []*Record) error {
	batchID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "container."+phase.String(), trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.size", len(recs)),
	))
	defer span.End()

	start := time.Now()
	units := make([]func() error, 0, len(recs))
	for _, rec := range recs {
		units = append(units, func() error {
			if err := advance(ctx, rec, phase); err != nil {
				c.hookFailed(rec, phase, err)
				return err
			}
			return nil
		})
	}
	err := c.executor.Execute(units).Wait()

	took := time.Since(start)
	c.metrics.ObserveBatch(phase.String(), took)
	c.verbose("Ended %s - took %d ms (%d components, batch %s)", phase, took.Milliseconds(), len(recs), batchID)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Container) scan(ctx context.Context, boundary string) ([]Descriptor, error) {
	ctx, span := c.tracer.Start(ctx, "container.scan", trace.WithAttributes(attribute.String("boundary", boundary)))
	defer span.End()

	if c.scanner == nil {
		return nil, &ScanError{Boundary: boundary, Err: errors.New("no scanner configured")}
	}

	start := time.Now()
	res := c.scanner.Scan(ctx, boundary).Wait()
	c.metrics.ObserveScan(time.Since(start), res.Err)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return nil, &ScanError{Boundary: boundary, Err: res.Err}
	}
	c.verbose("Scanned boundary %s: %d descriptors (took %d ms)", boundary, len(res.Descriptors), time.Since(start).Milliseconds())
	return res.Descriptors, nil
}

func (c *Container) controllerSnapshot() []Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Controller(nil), c.controllers...)
}

func (c *Container) verbose(msg string, args ...interface{}) {
	if c.showLogs {
		c.logger.Info(msg, args...)
		return
	}
	c.logger.Debug(msg, args...)
}
