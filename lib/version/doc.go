// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which build of overrun is running. The
// release process stamps [GitCommit], [GitDirty], [BuildTime], and
// [Version] with -ldflags -X; development builds and tests see the
// "unknown" and "0.1.0-dev" defaults.
//
// [Fprint] renders the --version output and [Short] and [Commit] feed
// the startup debug record.
package version
