// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process defines the exit-code contract of the overrun
// binary.
//
// The exit-code contract has three regions:
//
//   - A command that ran to completion contributes its own exit code
//     when it lies in 0-255 ([ExitCode]).
//   - A command that could not be spawned at all yields
//     [SpawnFailureExitCode].
//   - Every other failure (privilege, namespace, mount, setup, or a
//     child code that is out of range or unavailable) yields
//     [FailureExitCode].
package process
