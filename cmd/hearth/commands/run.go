package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/logging"
	"github.com/spf13/cobra"
)

var runFlags struct {
	manifestPath    string
	minVersion      string
	watch           bool
	singleThreaded  bool
	showLogs        bool
	metricsEnabled  bool
	metricsAddr     string
	tracingEnabled  bool
	tracingEndpoint string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the container and the module manager",
	Long: `Start the hearth container, bring up the framework components and
enable the modules listed in the manifest. With --watch the manifest is
reloaded on change and modules are enabled or disabled to match it.`,
	Run: runHearth,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.manifestPath, "modules", "", "Path to the module manifest YAML file")
	runCmd.Flags().StringVar(&runFlags.minVersion, "min-module-version", "",
		"Minimum required module version (e.g., '1.0.0') (optional)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "Watch the module manifest and reconcile on change")
	runCmd.Flags().BoolVar(&runFlags.singleThreaded, "single-threaded", false,
		"Run lifecycle batches and scans inline on the calling goroutine")
	runCmd.Flags().BoolVar(&runFlags.showLogs, "show-logs", false, "Log every component lifecycle step")
	runCmd.Flags().BoolVar(&runFlags.metricsEnabled, "metrics-enabled", false, "Serve Prometheus metrics")
	runCmd.Flags().StringVar(&runFlags.metricsAddr, "metrics-addr", "", "Address the metrics server listens on (e.g., ':9090')")
	runCmd.Flags().BoolVar(&runFlags.tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry tracing")
	runCmd.Flags().StringVar(&runFlags.tracingEndpoint, "tracing-endpoint", "", "OTLP gRPC endpoint for traces (e.g., localhost:4317)")
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("modules") {
		cfg.Modules.ManifestPath = runFlags.manifestPath
	}
	if flags.Changed("min-module-version") {
		cfg.Modules.MinVersion = runFlags.minVersion
	}
	if flags.Changed("watch") {
		cfg.Modules.Watch = runFlags.watch
	}
	if flags.Changed("single-threaded") {
		cfg.Container.SingleThreaded = runFlags.singleThreaded
	}
	if flags.Changed("show-logs") {
		cfg.Container.ShowLogs = runFlags.showLogs
	}
	if flags.Changed("metrics-enabled") {
		cfg.Metrics.Enabled = runFlags.metricsEnabled
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = runFlags.metricsAddr
	}
	if flags.Changed("tracing-enabled") {
		cfg.Tracing.Enabled = runFlags.tracingEnabled
	}
	if flags.Changed("tracing-endpoint") {
		cfg.Tracing.Endpoint = runFlags.tracingEndpoint
	}
}

func runHearth(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	HandleError(err, "Configuration error")
	applyRunFlags(cmd, cfg)
	HandleError(cfg.Validate(), "Configuration error")

	HandleError(setupLog(cfg, logLevelFlags), "Failed to setup logging")
	logger := logging.GetLogger("hearth")
	logger.Info("Starting hearth v%s", Version)

	a, err := newApp(cfg, appOptions{serveMetrics: true})
	HandleError(err, "Initialization error")

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.start(ctx); err != nil {
		logger.Error("Failed to start services: %v", err)
		cancel()
		HandleError(err, "Startup error")
	}
	logger.Info("hearth started with %d components", len(a.container.Describe()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	// Stop applies the configured per-service timeout itself.
	if err := a.stop(context.Background()); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("Shutdown complete")
}
