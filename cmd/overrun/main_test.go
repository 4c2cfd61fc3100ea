// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/overrun/lib/config"
)

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantTarget  string
		wantCommand []string
		wantCheck   bool
	}{
		{
			name:        "command only",
			args:        []string{"--", "make"},
			wantTarget:  ".",
			wantCommand: []string{"make"},
		},
		{
			name:        "directory and command",
			args:        []string{"/tmp/work", "--", "sh", "-c", "echo hi > b.txt"},
			wantTarget:  "/tmp/work",
			wantCommand: []string{"sh", "-c", "echo hi > b.txt"},
		},
		{
			name:        "flags around directory",
			args:        []string{"--relay", "doas", "/tmp/work", "--scratch-dir", "/var/tmp", "--", "ls", "-la"},
			wantTarget:  "/tmp/work",
			wantCommand: []string{"ls", "-la"},
		},
		{
			name:        "command flags are not parsed",
			args:        []string{"--", "grep", "--config", "x", "--help"},
			wantTarget:  ".",
			wantCommand: []string{"grep", "--config", "x", "--help"},
		},
		{
			name:       "check",
			args:       []string{"--check", "/srv/site"},
			wantTarget: "/srv/site",
			wantCheck:  true,
		},
		{
			name:       "check current directory",
			args:       []string{"--check"},
			wantTarget: ".",
			wantCheck:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := parseArguments(tt.args)
			if err != nil {
				t.Fatalf("parseArguments(%q): %v", tt.args, err)
			}
			if inv.target != tt.wantTarget {
				t.Errorf("target = %q, want %q", inv.target, tt.wantTarget)
			}
			if !reflect.DeepEqual(inv.command, tt.wantCommand) {
				t.Errorf("command = %q, want %q", inv.command, tt.wantCommand)
			}
			if inv.check != tt.wantCheck {
				t.Errorf("check = %v, want %v", inv.check, tt.wantCheck)
			}
		})
	}
}

func TestParseArguments_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"nothing", nil, "missing --"},
		{"no dash", []string{"/tmp/work", "make"}, "at most one directory"},
		{"directory without dash", []string{"/tmp/work"}, "missing --"},
		{"empty command", []string{"/tmp/work", "--"}, "command is required"},
		{"two directories", []string{"/a", "/b", "--", "make"}, "at most one directory"},
		{"check with command", []string{"--check", "--", "make"}, "does not take a command"},
		{"unknown flag", []string{"--bogus", "--", "make"}, "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArguments(tt.args)
			if err == nil {
				t.Fatalf("parseArguments(%q) succeeded, want error", tt.args)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseArguments_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"-h"}, {"/tmp/work", "-h"}} {
		inv, err := parseArguments(args)
		if err != nil {
			t.Fatalf("parseArguments(%q): %v", args, err)
		}
		if !inv.help {
			t.Errorf("parseArguments(%q): help not set", args)
		}
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "overrun.yaml")
	content := `elevation:
  relay: sudo
  relay_args: ["--preserve-env"]
scratch:
  directory: /var/tmp
log:
  level: warn
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	inv, err := parseArguments([]string{
		"--config", configPath,
		"--relay", "doas",
		"--delta-archive", "/tmp/changes.tar",
		"--", "true",
	})
	if err != nil {
		t.Fatalf("parseArguments: %v", err)
	}
	cfg, err := inv.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Elevation.Relay != "doas" {
		t.Errorf("Relay = %q, want doas", cfg.Elevation.Relay)
	}
	if !reflect.DeepEqual(cfg.Elevation.RelayArgs, []string{"--preserve-env"}) {
		t.Errorf("RelayArgs = %q", cfg.Elevation.RelayArgs)
	}
	if cfg.Scratch.Directory != "/var/tmp" {
		t.Errorf("Scratch.Directory = %q, want /var/tmp", cfg.Scratch.Directory)
	}
	if cfg.Delta.Archive != "/tmp/changes.tar" {
		t.Errorf("Delta.Archive = %q, want /tmp/changes.tar", cfg.Delta.Archive)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoadConfig_InvalidFlag(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	inv, err := parseArguments([]string{"--log-format", "xml", "--", "true"})
	if err != nil {
		t.Fatalf("parseArguments: %v", err)
	}
	if _, err := inv.loadConfig(); err == nil {
		t.Fatal("expected error for --log-format xml")
	}
}

func TestRelayArguments(t *testing.T) {
	original := []string{"/tmp/work", "--", "make"}

	t.Run("nothing from environment", func(t *testing.T) {
		t.Setenv(config.EnvironmentVariable, "")
		t.Setenv(debugEnvironmentVariable, "")
		inv, err := parseArguments(original)
		if err != nil {
			t.Fatal(err)
		}
		if got := inv.relayArguments(original); !reflect.DeepEqual(got, original) {
			t.Errorf("relayArguments = %q, want %q", got, original)
		}
	})

	t.Run("environment becomes flags", func(t *testing.T) {
		t.Setenv(config.EnvironmentVariable, "/etc/overrun.yaml")
		t.Setenv(debugEnvironmentVariable, "1")
		inv, err := parseArguments(original)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"--config", "/etc/overrun.yaml", "--log-level", "debug", "/tmp/work", "--", "make"}
		if got := inv.relayArguments(original); !reflect.DeepEqual(got, want) {
			t.Errorf("relayArguments = %q, want %q", got, want)
		}
	})

	t.Run("flags win over environment", func(t *testing.T) {
		t.Setenv(config.EnvironmentVariable, "/etc/overrun.yaml")
		t.Setenv(debugEnvironmentVariable, "1")
		args := []string{"--config", "/home/me/overrun.yaml", "--log-level", "warn", "--", "make"}
		inv, err := parseArguments(args)
		if err != nil {
			t.Fatal(err)
		}
		if got := inv.relayArguments(args); !reflect.DeepEqual(got, args) {
			t.Errorf("relayArguments = %q, want %q", got, args)
		}
	})
}
