package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/logging"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Hearth - runtime component container",
	Long: `Hearth hosts components in a dependency-aware container and enables or
disables modules at runtime from a watched manifest.`,
	Version:      Version,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Supports per-package log levels: --log-level debug --log-level module.manager=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level", nil,
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level container=debug --log-level config.watcher=warn")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the hearth YAML configuration file (optional)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(versionCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or returns the defaults when none is given.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(configPath)
}

// setupLog initializes logging from the config file, environment and flags.
// Priority: CLI flags > Environment variables > config file
func setupLog(cfg *config.Config, flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(cfg.LogLevel, cfg.PackageLogLevels, flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags merges the configured levels with environment variables
// and CLI flags, later sources winning.
//
// CLI format: ["debug"], ["default=info", "module.manager=debug"]
// Env vars: LOG_LEVEL_MODULE_MANAGER=debug (package name uppercased, dots to underscores)
//
// Returns: (defaultLevel, packageLevels map, error)
func parseLogLevelFlags(base string, basePackages map[string]string, flags []string) (string, map[string]string, error) {
	result := make(map[string]string, len(basePackages)+1)
	for pkg, level := range basePackages {
		result[pkg] = level
	}
	if base != "" {
		result["default"] = base
	}

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		parts := strings.SplitN(envPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		result[convertEnvKeyToPackageName(parts[0])] = parts[1]
	}

	for _, flag := range flags {
		if !strings.Contains(flag, "=") {
			// "debug" alone sets the default level
			result["default"] = flag
			continue
		}
		parts := strings.SplitN(flag, "=", 2)
		result[parts[0]] = parts[1]
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if _, err := logging.ParseLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if _, err := logging.ParseLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_MODULE_MANAGER -> module.manager
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}
