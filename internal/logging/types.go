package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LogLevel is the severity of a log entry.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the upper-case level name.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// LogField is a structured key/value pair.
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a structured logging field.
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Logger writes named, leveled entries. See the package documentation.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

var (
	packageLogLevels = make(map[string]LogLevel)
	packageLogMutex  sync.RWMutex
)

// SetPackageLogLevels replaces all per-package overrides. Keys are exact
// logger names or "prefix.*" patterns.
func SetPackageLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}

	parsed := make(map[string]LogLevel, len(levels))
	for pkg, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
		parsed[pkg] = level
	}

	packageLogMutex.Lock()
	packageLogLevels = parsed
	packageLogMutex.Unlock()
	return nil
}

// GetPackageLogLevel returns the override for name, or -1 when none applies.
func GetPackageLogLevel(packageName string) LogLevel {
	packageLogMutex.RLock()
	defer packageLogMutex.RUnlock()

	if level, ok := packageLogLevels[packageName]; ok {
		return level
	}

	var matches []string
	for pattern := range packageLogLevels {
		if matchesPattern(packageName, pattern) {
			matches = append(matches, pattern)
		}
	}
	if len(matches) == 0 {
		return LogLevel(-1)
	}
	// longest pattern is the most specific
	sort.Slice(matches, func(i, j int) bool { return len(matches[i]) > len(matches[j]) })
	return packageLogLevels[matches[0]]
}

// matchesPattern supports exact names and "prefix.*" wildcards.
//
//	matchesPattern("container.registry", "container.*") -> true
//	matchesPattern("container", "container.*")          -> false
func matchesPattern(packageName, pattern string) bool {
	if packageName == pattern {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(packageName, prefix+".")
	}
	return false
}

// ParseLevel converts a level name (case-insensitive) to a LogLevel.
func ParseLevel(levelStr string) (LogLevel, error) {
	return parseLevel(levelStr)
}

func parseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return -1, fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", levelStr)
	}
}
