// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package sandbox

import (
	"io/fs"
	"os"
	"syscall"
)

// copyDirectoryAttributes gives destination the owner, mode bits, and
// times of source.
func copyDirectoryAttributes(source, destination string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		current, err := os.Lstat(destination)
		if err != nil {
			return err
		}
		existing, ok := current.Sys().(*syscall.Stat_t)
		if !ok || existing.Uid != stat.Uid || existing.Gid != stat.Gid {
			if err := os.Lchown(destination, int(stat.Uid), int(stat.Gid)); err != nil {
				return err
			}
		}
	}
	// Chown clears setuid and setgid, so the mode goes second.
	mode := info.Mode() & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	if err := os.Chmod(destination, mode); err != nil {
		return err
	}
	return os.Chtimes(destination, info.ModTime(), info.ModTime())
}
