package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadModulesFile loads and validates a module manifest.
func LoadModulesFile(path string) (*ModulesFile, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load module manifest from %q: %w", path, err)
	}

	var manifest ModulesFile
	if err := k.UnmarshalWithConf("", &manifest, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse module manifest from %q: %w", path, err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("module manifest validation failed for %q: %w", path, err)
	}
	return &manifest, nil
}
