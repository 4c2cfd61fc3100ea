// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for overrun.
//
// Configuration is optional and comes from at most one file, named by:
//   - the --config flag passed to the command, or
//   - the OVERRUN_CONFIG environment variable.
//
// There is no automatic discovery. Without a file, [Default] applies.
// Command-line flags override file values; the file never overrides
// flags.
//
// Files ending in .json or .jsonc are parsed as JSON with comments and
// trailing commas. Everything else is parsed as YAML.
package config
