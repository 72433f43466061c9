package tracing

import (
	"context"
	"testing"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTLSConfiguration(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.TracingConfig
		expectError bool
	}{
		{
			name:        "TLS with insecure skip verify",
			cfg:         config.TracingConfig{Enabled: true, Endpoint: "localhost:4317", TLSInsecure: true},
			expectError: false,
		},
		{
			name:        "TLS with missing CA certificate",
			cfg:         config.TracingConfig{Enabled: true, Endpoint: "localhost:4317", TLSCAPath: "/path/to/ca.crt"},
			expectError: true,
		},
		{
			name:        "plaintext connection",
			cfg:         config.TracingConfig{Enabled: true, Endpoint: "localhost:4317"},
			expectError: false,
		},
		{
			name:        "enabled without endpoint",
			cfg:         config.TracingConfig{Enabled: true},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg, WithoutGlobal())
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, provider.IsEnabled())
			assert.NoError(t, provider.Stop(context.Background()))
		})
	}
}

func TestDisabledProviderIsNoop(t *testing.T) {
	provider, err := NewProvider(config.TracingConfig{})
	require.NoError(t, err)
	assert.False(t, provider.IsEnabled())
	assert.Equal(t, "tracing", provider.Name())

	_, span := provider.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, provider.ForceFlush(context.Background()))
	assert.NoError(t, provider.Stop(context.Background()))
}

type tracedService struct{}

func TestContainerBatchesProduceSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider, err := NewProvider(config.TracingConfig{}, WithExporter(exporter), WithoutGlobal())
	require.NoError(t, err)
	require.True(t, provider.IsEnabled())

	c := container.New(
		container.WithExecutor(container.InlineExecutor{}),
		container.WithTracer(provider.Tracer("hearth.container")),
	)
	ctx := context.Background()
	_, err = c.RegisterObject(ctx, container.Supply(&tracedService{}))
	require.NoError(t, err)
	require.NoError(t, provider.ForceFlush(ctx))

	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	assert.True(t, names["container.register"])
	assert.True(t, names["container.PRE_INIT"])
	assert.True(t, names["container.POST_INIT"])

	require.NoError(t, provider.Stop(ctx))
}
