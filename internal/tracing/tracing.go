package tracing

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName is reported as the OpenTelemetry service.name resource attribute.
const ServiceName = "hearth"

// Provider owns the process TracerProvider and runs as a lifecycle service.
// A disabled Provider hands out no-op tracers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	logger         *logging.Logger
	enabled        bool
}

// Option customizes NewProvider.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	version  string
	global   bool
}

// WithExporter replaces the OTLP exporter, mainly for tests.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithoutGlobal keeps the provider out of otel.SetTracerProvider.
func WithoutGlobal() Option {
	return func(o *options) { o.global = false }
}

// NewProvider builds the tracing provider described by cfg.
func NewProvider(cfg config.TracingConfig, opts ...Option) (*Provider, error) {
	logger := logging.GetLogger("tracing")
	o := options{version: "dev", global: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled && o.exporter == nil {
		logger.Debug("Tracing disabled")
		return &Provider{logger: logger}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter := o.exporter
	if exporter == nil {
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("tracing enabled but endpoint not configured")
		}
		otlpOptions, err := exporterOptions(cfg, logger)
		if err != nil {
			return nil, err
		}
		exporter, err = otlptracegrpc.New(ctx, otlpOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(o.version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	if o.global {
		otel.SetTracerProvider(tp)
	}

	logger.Info("Tracing initialized with endpoint: %s", cfg.Endpoint)
	return &Provider{tracerProvider: tp, logger: logger, enabled: true}, nil
}

func exporterOptions(cfg config.TracingConfig, logger *logging.Logger) ([]otlptracegrpc.Option, error) {
	var dialOptions []grpc.DialOption
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}

	switch {
	case cfg.TLSInsecure:
		tlsConfig := &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		logger.Warn("TLS enabled for tracing with certificate verification disabled")
	case cfg.TLSCAPath != "":
		caCert, err := os.ReadFile(cfg.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate to pool")
		}
		tlsConfig := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		logger.Debug("TLS enabled for tracing with CA from: %s", cfg.TLSCAPath)
	default:
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	return append(opts, otlptracegrpc.WithDialOption(dialOptions...)), nil
}

// Name implements lifecycle.Service
func (p *Provider) Name() string {
	return "tracing"
}

// Start implements lifecycle.Service
func (p *Provider) Start(ctx context.Context) error {
	return nil
}

// Stop flushes pending spans and shuts the provider down.
func (p *Provider) Stop(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		p.logger.Error("Error shutting down tracer provider: %v", err)
		return err
	}
	p.logger.Debug("Tracing provider stopped")
	return nil
}

// Tracer returns a named tracer from this provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	if !p.enabled {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tracerProvider.Tracer(name)
}

// ForceFlush exports every finished span synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	return p.tracerProvider.ForceFlush(ctx)
}

// IsEnabled returns whether tracing is enabled
func (p *Provider) IsEnabled() bool {
	return p.enabled
}
