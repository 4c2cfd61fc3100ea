// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Overrun runs a command against a directory through a copy-on-write
// overlay, then merges what the command changed back into the
// directory.
//
// Usage:
//
//	overrun [flags] [DIR] -- COMMAND [ARGS...]
//	overrun --check [flags] [DIR]
//
// When not run as root, overrun re-invokes itself through an elevation
// relay (sudo by default) and exits with the relay's exit code.
// Otherwise it detaches into a private mount namespace, binds DIR onto
// a snapshot inside a scratch area, mounts an overlay at DIR with the
// snapshot as the lower layer, runs COMMAND with DIR as its working
// directory, mirrors the overlay's view into the snapshot (and so into
// the real directory), and tears everything down. The exit code is the
// command's, 127 if it could not be started, or 1 if the sandbox could
// not be set up.
package main
