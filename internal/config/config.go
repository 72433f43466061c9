package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/moolen/hearth/internal/logging"
)

// Config holds all configuration for a hearth process.
//
// Example hearth.yaml:
//
//	log_level: info
//	package_log_levels:
//	  container.*: debug
//	container:
//	  single_threaded: false
//	  show_logs: true
//	  shutdown_timeout: 15s
//	modules:
//	  manifest_path: modules.yaml
//	  watch: true
//	metrics:
//	  enabled: true
//	  addr: ":9090"
type Config struct {
	// LogLevel is the default logging level (debug, info, warn, error, fatal)
	LogLevel string `yaml:"log_level"`

	// PackageLogLevels overrides the level per logger name, "pkg.*" wildcards allowed
	PackageLogLevels map[string]string `yaml:"package_log_levels"`

	Container ContainerConfig `yaml:"container"`
	Modules   ModulesConfig   `yaml:"modules"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ContainerConfig configures the component container.
type ContainerConfig struct {
	// SingleThreaded runs every lifecycle batch inline on the calling goroutine
	SingleThreaded bool `yaml:"single_threaded"`

	// ShowLogs promotes per-component traces and batch timings to info level
	ShowLogs bool `yaml:"show_logs"`

	// ShutdownTimeout bounds the stop of each process service
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// FrameworkBoundary is the boundary scanned during container Init
	FrameworkBoundary string `yaml:"framework_boundary"`
}

// ModulesConfig configures the extension module host.
type ModulesConfig struct {
	// ManifestPath is the modules.yaml listing module instances. Empty disables the host.
	ManifestPath string `yaml:"manifest_path"`

	// MinVersion rejects modules whose declared version is lower
	MinVersion string `yaml:"min_version"`

	// Watch enables hot reload of the manifest
	Watch bool `yaml:"watch"`

	// DebounceMillis coalesces manifest change events
	DebounceMillis int `yaml:"debounce_millis"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	TLSCAPath   string `yaml:"tls_ca_path"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Container: ContainerConfig{
			ShutdownTimeout:   15 * time.Second,
			FrameworkBoundary: "framework",
		},
		Modules: ModulesConfig{
			DebounceMillis: 500,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load reads a hearth.yaml on top of the defaults and validates the result.
// An empty path yields the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed for %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return NewConfigError(fmt.Sprintf("log_level: %v", err))
	}

	for pkg, level := range c.PackageLogLevels {
		if _, err := logging.ParseLevel(level); err != nil {
			return NewConfigError(fmt.Sprintf("package_log_levels[%s]: %v", pkg, err))
		}
	}

	if c.Container.ShutdownTimeout <= 0 {
		return NewConfigError("container.shutdown_timeout must be positive")
	}

	if c.Container.FrameworkBoundary == "" {
		return NewConfigError("container.framework_boundary must not be empty")
	}

	if c.Modules.MinVersion != "" {
		if _, err := version.NewVersion(c.Modules.MinVersion); err != nil {
			return NewConfigError(fmt.Sprintf("modules.min_version %q: %v", c.Modules.MinVersion, err))
		}
	}

	if c.Modules.Watch && c.Modules.ManifestPath == "" {
		return NewConfigError("modules.manifest_path must be set when modules.watch is enabled")
	}

	if c.Modules.DebounceMillis < 0 {
		return NewConfigError("modules.debounce_millis must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return NewConfigError("metrics.addr must be set when metrics are enabled")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
