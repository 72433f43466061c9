package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/moolen/hearth/internal/config"
	"github.com/moolen/hearth/internal/module"
	"github.com/spf13/cobra"
)

var modulesManifest string

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect and edit the module manifest",
	Long: `Inspect the registered module types and edit the module manifest.
A running "hearth run --watch" picks up the edits without a restart.`,
}

var modulesTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the registered module types",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE")
		for _, t := range module.DefaultFactories().List() {
			fmt.Fprintln(w, t)
		}
		return w.Flush()
	},
}

var modulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the modules in the manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := manifestPath()
		if err != nil {
			return err
		}
		manifest, err := config.LoadModulesFile(path)
		if err != nil {
			return err
		}
		return printManifest(cmd.OutOrStdout(), manifest)
	},
}

var modulesEnableCmd = &cobra.Command{
	Use:   "enable NAME",
	Short: "Mark a manifest module as enabled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(args[0], true)
	},
}

var modulesDisableCmd = &cobra.Command{
	Use:   "disable NAME",
	Short: "Mark a manifest module as disabled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(args[0], false)
	},
}

var modulesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an empty manifest if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := manifestPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("manifest %s already exists", path)
		}
		return config.WriteModulesFile(path, &config.ModulesFile{
			SchemaVersion: "v1",
			Modules:       []config.ModuleConfig{},
		})
	},
}

func init() {
	modulesCmd.PersistentFlags().StringVar(&modulesManifest, "modules", "",
		"Path to the module manifest YAML file (defaults to modules.manifest_path from --config)")

	modulesCmd.AddCommand(modulesTypesCmd)
	modulesCmd.AddCommand(modulesListCmd)
	modulesCmd.AddCommand(modulesEnableCmd)
	modulesCmd.AddCommand(modulesDisableCmd)
	modulesCmd.AddCommand(modulesInitCmd)
}

// manifestPath resolves --modules, falling back to the config file.
func manifestPath() (string, error) {
	if modulesManifest != "" {
		return modulesManifest, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Modules.ManifestPath == "" {
		return "", fmt.Errorf("no manifest configured, pass --modules or set modules.manifest_path")
	}
	return cfg.Modules.ManifestPath, nil
}

func setEnabled(name string, enabled bool) error {
	path, err := manifestPath()
	if err != nil {
		return err
	}
	manifest, err := config.LoadModulesFile(path)
	if err != nil {
		return err
	}

	found := false
	for i := range manifest.Modules {
		if manifest.Modules[i].Name == name {
			manifest.Modules[i].Enabled = enabled
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("module %q not found in %s", name, path)
	}
	return config.WriteModulesFile(path, manifest)
}

func printManifest(out io.Writer, manifest *config.ModulesFile) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tVERSION\tENABLED")
	for _, m := range manifest.Modules {
		version := m.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", m.Name, m.Type, version, m.Enabled)
	}
	return w.Flush()
}
