package logging

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sinkMu sync.RWMutex
	sink   = newSink(defaultCore())
)

// noExit keeps zap from terminating on FATAL; Fatal calls exitFunc itself.
type noExit struct{}

func (noExit) OnWrite(*zapcore.CheckedEntry, []zapcore.Field) {}

func newSink(core zapcore.Core) *zap.Logger {
	return zap.New(core, zap.WithFatalHook(noExit{}))
}

func defaultCore() zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(timestamp(t))
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	// Level filtering happens in Logger.shouldLog; the cores only route.
	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l < zapcore.ErrorLevel })
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })

	return zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), low),
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), high),
	)
}

// SetCore replaces the output core and returns a function restoring the
// previous one.
func SetCore(core zapcore.Core) (restore func()) {
	sinkMu.Lock()
	prev := sink
	sink = newSink(core)
	sinkMu.Unlock()
	return func() {
		sinkMu.Lock()
		sink = prev
		sinkMu.Unlock()
	}
}

// timestamp honours LOG_TIMESTAMP for deterministic output in tests.
func timestamp(t time.Time) string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return t.Format(time.RFC3339)
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.writeLog(level, msg, mergeFields(extractContextFields(l.ctx), l.fields, nil))
}

func (l *Logger) logWithFields(level LogLevel, msg string, fields ...LogField) {
	l.writeLog(level, msg, mergeFields(extractContextFields(l.ctx), l.fields, fields))
}

func (l *Logger) writeLog(level LogLevel, msg string, fields map[string]interface{}) {
	sinkMu.RLock()
	out := sink
	sinkMu.RUnlock()

	ce := out.Named(l.name).Check(zapLevel(level), msg)
	if ce == nil {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zfields := make([]zapcore.Field, 0, len(keys))
	for _, k := range keys {
		zfields = append(zfields, zap.Any(k, fields[k]))
	}
	ce.Write(zfields...)
}
