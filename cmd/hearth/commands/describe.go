package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/module"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var describeManifest string

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the component graph after enabling the manifest",
	Long: `Bring the container up once with the configured manifest, print every
registered component with its state, module and dependencies as YAML, and
shut down again. Metrics are not served and the manifest is not watched.
Only errors are logged unless --log-level is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("modules") {
			cfg.Modules.ManifestPath = describeManifest
		}
		// info logs share stdout with the snapshot
		if !cmd.Flags().Changed("log-level") {
			cfg.LogLevel = "error"
		}
		if err := setupLog(cfg, logLevelFlags); err != nil {
			return err
		}
		return describe(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	describeCmd.Flags().StringVar(&describeManifest, "modules", "", "Path to the module manifest YAML file")
}

// Snapshot is the document printed by describe.
type Snapshot struct {
	Components []container.ComponentInfo `yaml:"components"`
	Modules    []module.Info             `yaml:"modules,omitempty"`
}

func describe(ctx context.Context, cfg *config.Config, out io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.Modules.Watch = false

	a, err := newApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	if err := a.start(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.stop(context.Background()))
	}()

	snap := Snapshot{
		Components: a.container.Describe(),
		Modules:    a.modules.Modules(),
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}
