// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/overrun/lib/delta"
)

// EnvironmentVariable names the environment variable consulted by Load.
const EnvironmentVariable = "OVERRUN_CONFIG"

// Config is the configuration for an overrun invocation.
type Config struct {
	// Elevation configures how overrun re-invokes itself when it is not
	// running as root.
	Elevation ElevationConfig `yaml:"elevation"`

	// Scratch configures where the overlay's scratch area is created.
	Scratch ScratchConfig `yaml:"scratch"`

	// Delta configures the optional archive of the overlay upper layer.
	Delta DeltaConfig `yaml:"delta"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`
}

// ElevationConfig configures the privilege elevation relay.
type ElevationConfig struct {
	// Relay is the program used to gain root, looked up in PATH.
	// Default: sudo
	Relay string `yaml:"relay"`

	// RelayArgs are passed to the relay before the overrun executable,
	// for example ["--preserve-env=OVERRUN_CONFIG"].
	RelayArgs []string `yaml:"relay_args"`
}

// ScratchConfig configures the scratch area holding the snapshot,
// delta, and overlay work directories.
type ScratchConfig struct {
	// Directory is the parent of the per-run scratch directory. It must
	// be on a filesystem that supports overlay upper and work
	// directories (not another overlay, not NFS).
	// Default: the system temporary directory
	Directory string `yaml:"directory"`

	// Prefix is the name prefix of the per-run scratch directory.
	// Default: overrun-
	Prefix string `yaml:"prefix"`
}

// DeltaConfig configures the delta archive.
type DeltaConfig struct {
	// Archive is the path of a tar archive to write with the contents
	// of the overlay upper layer after the command exits. Empty
	// disables archiving. The extension selects compression: .tar,
	// .tar.zst, .tzst, or .tar.lz4.
	Archive string `yaml:"archive"`

	// Recipients are age public keys (age1...) the archive is
	// encrypted to. Required when Archive ends in .age.
	Recipients []string `yaml:"recipients"`
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is one of auto, text, json. Auto selects text when stderr
	// is a terminal and JSON otherwise.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Elevation: ElevationConfig{
			Relay: "sudo",
		},
		Scratch: ScratchConfig{
			Directory: os.TempDir(),
			Prefix:    "overrun-",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by OVERRUN_CONFIG, or
// returns Default when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, layered over
// Default. The only expansion performed is ${VAR} and ${VAR:-default}
// in path values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// loadFile reads a single configuration file, merging into the current
// config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so after stripping comments and
		// trailing commas the YAML decoder reads it directly.
		data = jsonc.ToJSON(data)
	}

	return yaml.Unmarshal(data, c)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":   os.Getenv("HOME"),
		"TMPDIR": os.TempDir(),
	}

	c.Scratch.Directory = expandVars(c.Scratch.Directory, vars)
	c.Delta.Archive = expandVars(c.Delta.Archive, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Elevation.Relay == "" {
		errs = append(errs, fmt.Errorf("elevation.relay is required"))
	}

	if c.Scratch.Directory == "" {
		errs = append(errs, fmt.Errorf("scratch.directory is required"))
	} else if !filepath.IsAbs(c.Scratch.Directory) {
		errs = append(errs, fmt.Errorf("scratch.directory must be absolute: %q", c.Scratch.Directory))
	}
	if strings.ContainsRune(c.Scratch.Prefix, '/') {
		errs = append(errs, fmt.Errorf("scratch.prefix must not contain '/': %q", c.Scratch.Prefix))
	}

	if c.Delta.Archive != "" {
		if err := delta.CheckDestination(c.Delta.Archive, c.Delta.Recipients); err != nil {
			errs = append(errs, fmt.Errorf("delta: %w", err))
		}
	} else if len(c.Delta.Recipients) > 0 {
		errs = append(errs, fmt.Errorf("delta.recipients requires delta.archive"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	formats := []string{"auto", "text", "json"}
	if !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
