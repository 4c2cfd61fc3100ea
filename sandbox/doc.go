// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox runs a command against a directory through a
// copy-on-write overlay mounted over that directory in a private mount
// namespace, then reconciles the changes back and tears the overlay
// down.
//
// The pipeline is strictly linear:
//
//  1. [PrivilegeGate] re-invokes the binary through an elevation relay
//     (sudo by default) when not running as root.
//  2. [Isolate] unshares the mount namespace and makes the mount tree
//     private. The returned [Namespace] is the handle every later mount
//     goes through.
//  3. [Namespace.BuildOverlay] creates a scratch area with snapshot,
//     delta, and work directories, bind-mounts the target onto the
//     snapshot, and mounts an overlay (lower=snapshot, upper=delta) at
//     the target path itself. The command needs no knowledge that it
//     is sandboxed: every path it uses still resolves.
//  4. [Executor] runs the command with the target as its working
//     directory and waits for it.
//  5. A [Synchronizer] reconciles the overlay view into the snapshot,
//     which is the real directory.
//  6. [Overlay.Teardown] lazily detaches the overlay, then the
//     snapshot, then removes the scratch area.
//
// [Sandbox.Run] drives steps 2-6. Resources are acquired as a stack and
// released in reverse order on every exit path; a step that never
// succeeded is never undone. Once the overlay is mounted, a spawn
// failure or a synchronizer failure is logged and the remaining steps
// still run, because live mounts must not leak.
//
// The mount namespace belongs to the OS thread that called [Isolate].
// That goroutine stays locked to its thread for the rest of its life,
// and all filesystem work of the run (including the synchronizer and
// the child's fork) happens on it. When the goroutine exits the runtime
// discards the thread along with the namespace.
//
// Only the filesystem view is sandboxed. Network, process, and user
// namespaces are untouched, and two concurrent runs over the same
// directory are not supported.
package sandbox
