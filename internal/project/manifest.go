package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest is the optional sail-lsp.toml next to (or above) the workspace.
// Every field is optional; command-line flags win over manifest values.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the manifest file layout.
type Config struct {
	Sail SailConfig `toml:"sail"`
	LSP  LSPConfig  `toml:"lsp"`
}

// SailConfig configures how the sail toolchain is invoked.
type SailConfig struct {
	Path string `toml:"path"`
}

// LSPConfig tunes server timing behavior.
type LSPConfig struct {
	DebounceMS       int   `toml:"debounce_ms"`
	CommandTimeoutMS int   `toml:"command_timeout_ms"`
	SpawnTimeoutMS   int   `toml:"spawn_timeout_ms"`
	Watch            *bool `toml:"watch"`
}

// FindManifest walks up from startDir looking for sail-lsp.toml.
func FindManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "sail-lsp.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadManifest locates and parses the nearest manifest. A missing manifest
// is not an error; ok reports whether one was found.
func LoadManifest(startDir string) (*Manifest, bool, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, true, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}, true, nil
}
