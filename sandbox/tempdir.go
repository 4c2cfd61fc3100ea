// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import "os"

// tempDir is the default scratch parent.
var tempDir = os.TempDir
