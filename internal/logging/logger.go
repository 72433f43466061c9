// Package logging provides named, leveled, structured loggers for hearth.
//
// Initialize the package once at startup and fetch a logger per component:
//
//	logging.Initialize("info", map[string]string{"container.*": "debug"})
//	logger := logging.GetLogger("container.registry")
//	logger.Info("registered %s", key)
//
// Structured fields are attached either per call or persistently:
//
//	logger.InfoWithFields("module enabled",
//	    logging.Field("module", name),
//	    logging.Field("components", n),
//	)
//	modLogger := logger.WithField("module", name)
//
// Per-package overrides accept exact names ("module.manager") and wildcard
// prefixes ("container.*"). The most specific match wins; unmatched names use
// the default level.
//
// A logger created with WithContext adds trace_id and span_id to every entry,
// taken from an OpenTelemetry span in the context or from the TraceIDKey /
// SpanIDKey context values.
//
// Entries are written through a zap core. DEBUG, INFO and WARN go to stdout,
// ERROR and FATAL to stderr. Tests replace the core with SetCore.
//
// Logger values are immutable; the With* methods return copies and are safe
// to share across goroutines.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	initOnce     sync.Once
	// exitFunc terminates the process after a FATAL entry. Tests override it.
	exitFunc = os.Exit
)

// Initialize sets the default level and optional per-package overrides.
// Unknown default levels fall back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}

	globalLogger = &Logger{
		level: level,
		name:  "hearth",
	}

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}
	return nil
}

// GetLogger returns a logger with the given component name.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

// Name returns the component name of the logger.
func (l *Logger) Name() string {
	return l.name
}

// Enabled reports whether an entry at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return l.shouldLog(level)
}

func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Debug logs a printf-style debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf(DEBUG, msg, args...)
	}
}

// Info logs a printf-style info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf(INFO, msg, args...)
	}
}

// Warn logs a printf-style warning.
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf(WARN, msg, args...)
	}
}

// Error logs a printf-style error.
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(ERROR, msg, args...)
	}
}

// Fatal logs and exits with status 1.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(FATAL, msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs msg with err appended.
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf(ERROR, msg+" - %v", args...)
	}
}

// DebugWithFields logs a debug message with structured fields.
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields(DEBUG, msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields.
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields(INFO, msg, fields...)
	}
}

// WarnWithFields logs a warning with structured fields.
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields(WARN, msg, fields...)
	}
}

// ErrorWithFields logs an error with structured fields.
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(ERROR, msg, fields...)
	}
}

// FatalWithFields logs with structured fields and exits with status 1.
func (l *Logger) FatalWithFields(msg string, fields ...LogField) {
	if l.shouldLog(FATAL) {
		l.logWithFields(FATAL, msg, fields...)
		exitFunc(1)
	}
}

// WithName returns a copy of the logger under a different name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{level: l.level, name: name, fields: make(map[string]interface{}), ctx: l.ctx}
}

// WithField returns a copy of the logger carrying key=value on every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	next := l.clone()
	next.fields[key] = value
	return next
}

// WithFields returns a copy of the logger carrying all given fields.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	next := l.clone()
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

// WithContext returns a copy of the logger that extracts trace and span ids
// from ctx. A nil ctx disables extraction.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	next := l.clone()
	next.ctx = ctx
	return next
}

func (l *Logger) clone() *Logger {
	return &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
}
