// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for overrun packages.
//
// [RequireRoot] skips tests that need real mount namespaces and
// overlay mounts when the test binary is not running as root. Those
// tests exercise the kernel paths end to end; everything else runs
// against a fake mount table and does not need privilege.
//
// [TreeDir] creates a temporary directory pre-populated with files
// from a path-to-content map, and [ReadTree] reads one back, so tests
// can compare directory trees before and after a sandboxed run.
//
// [RequireReceive] and [RequireSend] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no overrun-internal dependencies.
package testutil
