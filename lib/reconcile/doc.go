// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile makes one directory tree match another.
//
// [Mirror] is the default change synchronizer used after a sandboxed
// run: the source is the overlay-backed target path (what the command
// left behind) and the destination is the snapshot binding of the real
// directory. After a successful Synchronize the destination contains
// exactly the entries visible in the source.
//
// Unchanged files are detected by a size and modification-time quick
// check. When sizes match but times differ, contents are compared by
// BLAKE3 digest so that a rewrite with identical bytes does not count
// as an update. Changed files are written to a temporary file in the
// destination directory and renamed into place, so a reader never sees
// a partially written file.
//
// Devices, FIFOs, and sockets are not reconciled; they are skipped with
// a warning.
package reconcile
