// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/overrun/lib/config"
	"github.com/bureau-foundation/overrun/lib/process"
	"github.com/bureau-foundation/overrun/lib/reconcile"
	"github.com/bureau-foundation/overrun/lib/version"
	"github.com/bureau-foundation/overrun/sandbox"
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "overrun: %v\n", err)
	}
	os.Exit(code)
}

// invocation is a parsed command line.
type invocation struct {
	flags *pflag.FlagSet

	configPath   string
	relay        string
	scratchDir   string
	deltaArchive string
	recipients   []string
	logLevel     string
	logFormat    string
	check        bool
	help         bool

	// target is the DIR operand, "." when omitted.
	target string

	// command is everything after "--".
	command []string
}

func parseArguments(args []string) (*invocation, error) {
	inv := &invocation{target: "."}

	flagSet := pflag.NewFlagSet("overrun", pflag.ContinueOnError)
	flagSet.StringVar(&inv.configPath, "config", "", "configuration file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&inv.relay, "relay", "", "elevation relay used when not root (default: sudo)")
	flagSet.StringVar(&inv.scratchDir, "scratch-dir", "", "parent directory of the scratch area (default: system temporary directory)")
	flagSet.StringVar(&inv.deltaArchive, "delta-archive", "", "write the command's changes to this .tar, .tar.zst, .tzst, or .tar.lz4 archive")
	flagSet.StringArrayVar(&inv.recipients, "delta-recipient", nil, "encrypt the delta archive to this age public key (repeatable; archive name must end in .age)")
	flagSet.StringVar(&inv.logLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")
	flagSet.StringVar(&inv.logFormat, "log-format", "", "log format: auto, text, json (default: auto)")
	flagSet.BoolVar(&inv.check, "check", false, "check that DIR can be sandboxed, then exit")
	flagSet.BoolVarP(&inv.help, "help", "h", false, "show help")
	flagSet.SetOutput(os.Stderr)
	flagSet.Usage = func() {}
	inv.flags = flagSet

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if inv.help {
		return inv, nil
	}

	operands := flagSet.Args()
	dash := flagSet.ArgsLenAtDash()
	if dash >= 0 {
		inv.command = operands[dash:]
		operands = operands[:dash]
	}

	switch len(operands) {
	case 0:
	case 1:
		inv.target = operands[0]
	default:
		return nil, fmt.Errorf("expected at most one directory before --, got %d: %q", len(operands), operands)
	}

	if inv.check {
		if len(inv.command) > 0 {
			return nil, errors.New("--check does not take a command")
		}
		return inv, nil
	}
	if dash < 0 {
		return nil, errors.New("missing -- before the command")
	}
	if len(inv.command) == 0 {
		return nil, errors.New("command is required after --")
	}
	return inv, nil
}

// loadConfig loads the configuration file, if any, and applies the
// flags given on the command line over it.
func (inv *invocation) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if inv.configPath != "" {
		cfg, err = config.LoadFile(inv.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if inv.flags.Changed("relay") {
		cfg.Elevation.Relay = inv.relay
	}
	if inv.flags.Changed("scratch-dir") {
		cfg.Scratch.Directory = inv.scratchDir
		if absolute, err := filepath.Abs(inv.scratchDir); err == nil && inv.scratchDir != "" {
			cfg.Scratch.Directory = absolute
		}
	}
	if inv.flags.Changed("delta-archive") {
		cfg.Delta.Archive = inv.deltaArchive
	}
	if inv.flags.Changed("delta-recipient") {
		cfg.Delta.Recipients = inv.recipients
	}
	if inv.flags.Changed("log-level") {
		cfg.Log.Level = inv.logLevel
	}
	if inv.flags.Changed("log-format") {
		cfg.Log.Format = inv.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

// relayArguments returns the arguments for the elevated invocation.
// Relays such as sudo reset the environment, so settings that came
// from environment variables are turned into flags.
func (inv *invocation) relayArguments(args []string) []string {
	var prefix []string
	if !inv.flags.Changed("config") {
		if configPath := os.Getenv(config.EnvironmentVariable); configPath != "" {
			if absolute, err := filepath.Abs(configPath); err == nil {
				configPath = absolute
			}
			prefix = append(prefix, "--config", configPath)
		}
	}
	if !inv.flags.Changed("log-level") && os.Getenv(debugEnvironmentVariable) != "" {
		prefix = append(prefix, "--log-level", "debug")
	}
	return append(prefix, args...)
}

// run executes one invocation and returns the process exit code. A
// non-nil error is reported to the user as the single diagnostic line
// for the failure.
func run(args []string) (int, error) {
	// Handle --version before flag parsing to match other binaries.
	if len(args) > 0 && args[0] == "--version" {
		version.Fprint(os.Stdout, "overrun")
		return 0, nil
	}

	inv, err := parseArguments(args)
	if err != nil {
		return process.FailureExitCode, err
	}
	if inv.help {
		printHelp(inv.flags)
		return 0, nil
	}

	cfg, err := inv.loadConfig()
	if err != nil {
		return process.FailureExitCode, err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	logger.Debug("overrun starting", "version", version.Short(), "commit", version.Commit(), "euid", os.Geteuid())

	if inv.check {
		validator := sandbox.NewValidator()
		validator.ValidateAll(inv.target, cfg.Scratch.Directory, cfg.Elevation.Relay)
		validator.PrintResults(os.Stdout)
		if validator.HasErrors() {
			return process.FailureExitCode, errors.New("validation failed")
		}
		return 0, nil
	}

	gate := &sandbox.PrivilegeGate{
		Relay:     cfg.Elevation.Relay,
		RelayArgs: cfg.Elevation.RelayArgs,
		Args:      inv.relayArguments(args),
		Logger:    logger,
	}
	relayed, code, err := gate.Elevate()
	if err != nil {
		return code, err
	}
	if relayed {
		return code, nil
	}

	sb, err := sandbox.New(sandbox.Config{
		Target:  inv.target,
		Command: inv.command,
		Scratch: sandbox.ScratchOptions{
			Directory: cfg.Scratch.Directory,
			Prefix:    cfg.Scratch.Prefix,
		},
		Synchronizer:    &reconcile.Mirror{Logger: logger},
		DeltaArchive:    cfg.Delta.Archive,
		DeltaRecipients: cfg.Delta.Recipients,
		Logger:          logger,
	})
	if err != nil {
		return process.FailureExitCode, err
	}

	result, err := sb.Run()
	if err != nil {
		return result.ExitCode, err
	}
	return result.ExitCode, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `overrun - run a command against a directory through a copy-on-write overlay

The command sees DIR as usual and may change it freely. Its writes land
in an overlay; once it exits they are merged back into DIR. Requires
root; when started unprivileged, overrun re-runs itself through the
elevation relay.

Usage:
  overrun [flags] [DIR] -- COMMAND [ARGS...]
  overrun --check [flags] [DIR]

Examples:
  # Run a build in the current directory
  overrun -- make

  # Run a script against another directory, keeping a record of its changes
  overrun --delta-archive /tmp/changes.tar.zst /srv/site -- ./regenerate.sh

  # Keep the record encrypted to an age key
  overrun --delta-archive /tmp/changes.tar.zst.age --delta-recipient age1... -- make install

  # Check whether a directory can be sandboxed
  overrun --check /srv/site

Exit status:
  The command's exit status, 127 if the command could not be started,
  or 1 if the sandbox could not be set up.

Environment:
  %s    configuration file (YAML, or JSON with comments)
  %s     enable debug logging

Flags:
`, config.EnvironmentVariable, debugEnvironmentVariable)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
