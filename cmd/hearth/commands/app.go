package commands

import (
	"context"
	"fmt"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/controller/inject"
	"github.com/moolen/hearth/internal/controller/subscribe"
	"github.com/moolen/hearth/internal/discovery"
	"github.com/moolen/hearth/internal/eventbus"
	"github.com/moolen/hearth/internal/lifecycle"
	"github.com/moolen/hearth/internal/metrics"
	"github.com/moolen/hearth/internal/module"
	"github.com/moolen/hearth/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// Register the bundled module types and their component providers.
	_ "github.com/moolen/hearth/internal/extensions/all"
)

const tracerName = "github.com/moolen/hearth/internal/container"

// app is one fully wired hearth process.
type app struct {
	bus       *eventbus.Bus
	catalog   *discovery.Catalog
	registry  *prometheus.Registry
	tracing   *tracing.Provider
	container *container.Container
	modules   *module.Manager
	lifecycle *lifecycle.Manager
}

type appOptions struct {
	serveMetrics bool
	tracingOpts  []tracing.Option
}

// newApp wires the container, its controllers and the module manager from
// cfg and registers them with a lifecycle manager in start order.
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{
		bus:      eventbus.New(),
		catalog:  discovery.Default().Clone(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.catalog.Descriptors(cfg.Container.FrameworkBoundary, "eventbus", container.Supply(a.bus)); err != nil {
		return nil, fmt.Errorf("failed to register event bus: %w", err)
	}

	provider, err := tracing.NewProvider(cfg.Tracing, append([]tracing.Option{tracing.WithServiceVersion(Version)}, opts.tracingOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing provider: %w", err)
	}
	a.tracing = provider

	a.container = container.New(
		container.WithScanner(discovery.NewScanner(a.catalog, discovery.WithInline(cfg.Container.SingleThreaded))),
		container.WithSingleThreaded(cfg.Container.SingleThreaded),
		container.WithShowLogs(cfg.Container.ShowLogs),
		container.WithFrameworkBoundary(cfg.Container.FrameworkBoundary),
		container.WithPublisher(a.bus),
		container.WithMetrics(metrics.NewContainer(a.registry, "main")),
		container.WithTracer(provider.Tracer(tracerName)),
	)
	if err := a.container.UseControllers(inject.New(a.container), subscribe.New(a.bus)); err != nil {
		return nil, fmt.Errorf("failed to install controllers: %w", err)
	}

	a.modules, err = module.NewManager(module.ManagerFromConfig(cfg.Modules), a.container,
		module.WithCatalog(a.catalog),
		module.WithMetrics(metrics.NewModules(a.registry)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create module manager: %w", err)
	}

	a.lifecycle = lifecycle.NewManager(cfg.Container.ShutdownTimeout)
	if err := a.lifecycle.Register(a.tracing); err != nil {
		return nil, err
	}
	containerDeps := []lifecycle.Service{a.tracing}
	if opts.serveMetrics && cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Addr, a.registry)
		if err := a.lifecycle.Register(server); err != nil {
			return nil, err
		}
		containerDeps = append(containerDeps, server)
	}
	if err := a.lifecycle.Register(a.container, containerDeps...); err != nil {
		return nil, err
	}
	if err := a.lifecycle.Register(a.modules, a.container); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) start(ctx context.Context) error {
	return a.lifecycle.Start(ctx)
}

func (a *app) stop(ctx context.Context) error {
	return a.lifecycle.Stop(ctx)
}
