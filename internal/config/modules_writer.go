package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteModulesFile atomically writes a module manifest using a temp file in
// the target directory followed by a rename, so readers and the manifest
// watcher never observe a partial file.
func WriteModulesFile(path string, manifest *ModulesFile) error {
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid manifest: %w", err)
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal module manifest: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".modules.*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %q: %w", path, err)
	}
	committed = true
	return nil
}
