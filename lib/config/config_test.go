// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Elevation.Relay != "sudo" {
		t.Errorf("expected relay=sudo, got %s", cfg.Elevation.Relay)
	}
	if cfg.Scratch.Directory != os.TempDir() {
		t.Errorf("expected scratch directory=%s, got %s", os.TempDir(), cfg.Scratch.Directory)
	}
	if cfg.Scratch.Prefix != "overrun-" {
		t.Errorf("expected scratch prefix=overrun-, got %s", cfg.Scratch.Prefix)
	}
	if cfg.Delta.Archive != "" {
		t.Errorf("expected no delta archive by default, got %s", cfg.Delta.Archive)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_WithoutOverrunConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_WithOverrunConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "overrun.yaml")

	configContent := `
elevation:
  relay: doas
  relay_args: ["-n"]
scratch:
  directory: ${HOME}/.cache/overrun
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv(EnvironmentVariable, configPath)
	t.Setenv("HOME", "/home/tester")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Elevation.Relay != "doas" {
		t.Errorf("expected relay=doas, got %s", cfg.Elevation.Relay)
	}
	if !reflect.DeepEqual(cfg.Elevation.RelayArgs, []string{"-n"}) {
		t.Errorf("expected relay_args=[-n], got %v", cfg.Elevation.RelayArgs)
	}
	if cfg.Scratch.Directory != "/home/tester/.cache/overrun" {
		t.Errorf("expected expanded scratch directory, got %s", cfg.Scratch.Directory)
	}
	// Unset fields keep their defaults.
	if cfg.Scratch.Prefix != "overrun-" {
		t.Errorf("expected default prefix to survive, got %s", cfg.Scratch.Prefix)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level=debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("expected default log format, got %s", cfg.Log.Format)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "overrun.jsonc")
	configContent := `{
  // Keep deltas for review.
  "delta": {"archive": "${ARCHIVE_ROOT:-/var/tmp}/delta.tar.zst"},
  /* quiet by default */
  "log": {"level": "warn", "format": "json",},
}`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("ARCHIVE_ROOT", "")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Delta.Archive != "/var/tmp/delta.tar.zst" {
		t.Errorf("expected default-expanded archive path, got %s", cfg.Delta.Archive)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("expected warn/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Elevation.Relay != "sudo" {
		t.Errorf("expected default relay, got %s", cfg.Elevation.Relay)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "overrun.yaml")
	configContent := `
elevation:
  relay: ""
scratch:
  directory: relative/path
  prefix: a/b
delta:
  archive: /tmp/changes.tar.age
log:
  level: loud
  format: xml
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := LoadFile(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{
		"elevation.relay",
		"scratch.directory must be absolute",
		"scratch.prefix",
		"no recipients are configured",
		"log.level",
		"log.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("OVERRUN_TEST_VAR", "from-env")

	tests := []struct {
		input string
		vars  map[string]string
		want  string
	}{
		{"/plain/path", nil, "/plain/path"},
		{"${HOME}/x", map[string]string{"HOME": "/h"}, "/h/x"},
		{"${OVERRUN_TEST_VAR}/x", nil, "from-env/x"},
		{"${OVERRUN_TEST_UNSET:-/fallback}", nil, "/fallback"},
		{"${OVERRUN_TEST_UNSET}", nil, ""},
	}

	for _, tt := range tests {
		if got := expandVars(tt.input, tt.vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate_DeltaRecipientsWithoutArchive(t *testing.T) {
	cfg := Default()
	cfg.Delta.Recipients = []string{"age1qqqq"}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "delta.recipients requires delta.archive") {
		t.Errorf("Validate() = %v, want recipients-without-archive error", err)
	}
}
