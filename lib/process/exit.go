// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

const (
	// FailureExitCode is reported when the sandbox could not be set up,
	// and as the fallback for child exit codes that cannot be forwarded.
	FailureExitCode = 1

	// SpawnFailureExitCode is reported when the command could not be
	// started. Matches the shell's "command not found" status.
	SpawnFailureExitCode = 127
)

// ExitCode maps a child exit code onto the process exit code space.
// Codes in 0-255 pass through unchanged. Anything else, including the
// -1 that os/exec reports for a signal-terminated child, maps to
// FailureExitCode.
func ExitCode(code int) int {
	if code < 0 || code > 255 {
		return FailureExitCode
	}
	return code
}
