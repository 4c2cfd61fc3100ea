// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package sandbox

import (
	"io/fs"
	"os"
)

// copyDirectoryAttributes gives destination the mode bits and times of
// source.
func copyDirectoryAttributes(source, destination string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if err := os.Chmod(destination, info.Mode()&fs.ModePerm); err != nil {
		return err
	}
	return os.Chtimes(destination, info.ModTime(), info.ModTime())
}
