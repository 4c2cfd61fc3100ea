// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package sandbox

import (
	"errors"

	"golang.org/x/sys/unix"
)

// hostKernel issues mount-table syscalls on the calling thread.
type hostKernel struct{}

func newHostKernel() kernel {
	return hostKernel{}
}

func (hostKernel) unshareMountNamespace() error {
	return unix.Unshare(unix.CLONE_NEWNS)
}

func (hostKernel) makeRootPrivate() error {
	return unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, "")
}

func (hostKernel) bindRecursive(source, target string) error {
	return unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, "")
}

func (hostKernel) mountOverlay(target, lower, upper, work string) error {
	return unix.Mount("overlay", target, "overlay", 0, overlayOptions(lower, upper, work))
}

func (hostKernel) detachLazy(target string) error {
	return unix.Unmount(target, unix.MNT_DETACH)
}

func (hostKernel) filesystemMagic(path string) (uint32, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	// f_type is a 32-bit magic number; the field width varies by
	// architecture.
	return uint32(stat.Type), nil
}

// isUnsupportedMountError reports whether an overlay mount failure
// means the kernel or filesystem cannot do overlays, as opposed to a
// permission or path problem.
func isUnsupportedMountError(err error) bool {
	return errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP)
}
