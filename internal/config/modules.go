package config

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ModulesFile is the module manifest listing the extension module instances
// the host should run.
//
// Example YAML structure:
//
//	schema_version: v1
//	modules:
//	  - name: heartbeat
//	    type: timer
//	    version: 1.2.0
//	    enabled: true
//	    config:
//	      interval: 5s
type ModulesFile struct {
	// SchemaVersion is the manifest schema version, only "v1" is accepted
	SchemaVersion string `yaml:"schema_version"`

	// Modules is the list of module instances
	Modules []ModuleConfig `yaml:"modules"`
}

// ModuleConfig describes a single module instance.
type ModuleConfig struct {
	// Name is the unique instance name, also used as the binding name
	Name string `yaml:"name"`

	// Type selects the registered module factory
	Type string `yaml:"type"`

	// Version is the declared module version, checked against modules.min_version
	Version string `yaml:"version,omitempty"`

	// Enabled modules are started, disabled ones are only listed
	Enabled bool `yaml:"enabled"`

	// Config is passed to the module factory as-is
	Config map[string]interface{} `yaml:"config,omitempty"`
}

// Validate checks schema version, required fields and name uniqueness.
func (f *ModulesFile) Validate() error {
	if f.SchemaVersion != "v1" {
		return NewConfigError(fmt.Sprintf(
			"unsupported schema_version: %q (expected \"v1\")",
			f.SchemaVersion,
		))
	}

	seen := make(map[string]bool, len(f.Modules))
	for i, m := range f.Modules {
		if m.Name == "" {
			return NewConfigError(fmt.Sprintf("modules[%d]: name is required", i))
		}
		if m.Type == "" {
			return NewConfigError(fmt.Sprintf("modules[%d] (%s): type is required", i, m.Name))
		}
		if m.Version != "" {
			if _, err := version.NewVersion(m.Version); err != nil {
				return NewConfigError(fmt.Sprintf("modules[%d] (%s): invalid version %q", i, m.Name, m.Version))
			}
		}
		if seen[m.Name] {
			return NewConfigError(fmt.Sprintf("modules[%d]: duplicate module name %q", i, m.Name))
		}
		seen[m.Name] = true
	}
	return nil
}

// Enabled returns the enabled module instances keyed by name.
func (f *ModulesFile) Enabled() map[string]ModuleConfig {
	out := make(map[string]ModuleConfig)
	for _, m := range f.Modules {
		if m.Enabled {
			out[m.Name] = m
		}
	}
	return out
}
