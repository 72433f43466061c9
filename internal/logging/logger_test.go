package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := SetCore(core)
	t.Cleanup(restore)
	return logs
}

func resetLevels(t *testing.T, level string, pkgs map[string]string) {
	t.Helper()
	require.NoError(t, Initialize(level, pkgs))
	t.Cleanup(func() {
		_ = Initialize("info", map[string]string{})
	})
}

func TestLoggerLevelFiltering(t *testing.T) {
	logs := observe(t)
	resetLevels(t, "warn", nil)

	logger := GetLogger("container")
	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)
	logger.Error("error %d", 4)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn 3", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "error 4", entries[1].Message)
	assert.Equal(t, "container", entries[1].LoggerName)
}

func TestPackageLevelOverrides(t *testing.T) {
	tests := []struct {
		name    string
		logger  string
		levels  map[string]string
		debugOn bool
	}{
		{name: "exact match", logger: "module.manager", levels: map[string]string{"module.manager": "debug"}, debugOn: true},
		{name: "wildcard match", logger: "container.registry", levels: map[string]string{"container.*": "debug"}, debugOn: true},
		{name: "wildcard does not match parent", logger: "container", levels: map[string]string{"container.*": "debug"}, debugOn: false},
		{name: "most specific wins", logger: "container.registry", levels: map[string]string{"container.*": "debug", "container.registry": "error"}, debugOn: false},
		{name: "no override uses default", logger: "discovery", levels: map[string]string{"container.*": "debug"}, debugOn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetLevels(t, "info", tt.levels)
			assert.Equal(t, tt.debugOn, GetLogger(tt.logger).Enabled(DEBUG))
		})
	}
}

func TestSetPackageLogLevelsRejectsInvalidLevel(t *testing.T) {
	err := SetPackageLogLevels(map[string]string{"container": "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container")
}

func TestWithFieldsAreMergedAndImmutable(t *testing.T) {
	logs := observe(t)
	resetLevels(t, "debug", nil)

	base := GetLogger("module").WithField("module", "timer")
	child := base.WithFields(Field("version", "1.0.0"))

	child.InfoWithFields("enabled", Field("components", 3), Field("module", "override"))
	base.Info("base")

	entries := logs.All()
	require.Len(t, entries, 2)

	got := entries[0].ContextMap()
	assert.Equal(t, "override", got["module"])
	assert.Equal(t, "1.0.0", got["version"])
	assert.EqualValues(t, 3, got["components"])

	baseFields := entries[1].ContextMap()
	assert.Equal(t, "timer", baseFields["module"])
	_, hasVersion := baseFields["version"]
	assert.False(t, hasVersion, "parent logger must not see child fields")
}

func TestWithContextExtractsIDs(t *testing.T) {
	logs := observe(t)
	resetLevels(t, "info", nil)

	ctx := context.WithValue(context.Background(), TraceIDKey(), "trace-123")
	ctx = context.WithValue(ctx, SpanIDKey(), "span-456")
	GetLogger("container").WithContext(ctx).Info("batch")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "trace-123", fields["trace_id"])
	assert.Equal(t, "span-456", fields["span_id"])
}

func TestWithContextPrefersOtelSpan(t *testing.T) {
	logs := observe(t)
	resetLevels(t, "info", nil)

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = context.WithValue(ctx, TraceIDKey(), "ignored")
	GetLogger("container").WithContext(ctx).Info("batch")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
}

func TestFatalCallsExitFunc(t *testing.T) {
	logs := observe(t)
	resetLevels(t, "info", nil)

	var code int
	prev := exitFunc
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = prev })

	GetLogger("cmd").Fatal("boom: %s", "bad config")

	assert.Equal(t, 1, code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.FatalLevel, logs.All()[0].Level)
}

func TestErrorWithErrAppendsError(t *testing.T) {
	logs := observe(t)
	resetLevels(t, "info", nil)

	GetLogger("container").ErrorWithErr("close %s failed", assert.AnError, "timer")
	assert.Equal(t, "close timer failed - "+assert.AnError.Error(), logs.All()[0].Message)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "warning": WARN, "Error": ERROR, "fatal": FATAL} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestCloneFieldsIndependence(t *testing.T) {
	src := map[string]interface{}{"key": "original"}
	dst := cloneFields(src)
	dst["key"] = "modified"
	dst["extra"] = true

	assert.Equal(t, "original", src["key"])
	assert.Len(t, src, 1)
	assert.NotNil(t, cloneFields(nil))
}
