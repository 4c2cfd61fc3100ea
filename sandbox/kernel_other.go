// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package sandbox

import (
	"errors"
	"runtime"
)

var errUnsupportedPlatform = errors.New("mount namespaces and overlayfs require linux, not " + runtime.GOOS)

// hostKernel fails every operation outside Linux.
type hostKernel struct{}

func newHostKernel() kernel {
	return hostKernel{}
}

func (hostKernel) unshareMountNamespace() error                { return errUnsupportedPlatform }
func (hostKernel) makeRootPrivate() error                      { return errUnsupportedPlatform }
func (hostKernel) bindRecursive(source, target string) error   { return errUnsupportedPlatform }
func (hostKernel) detachLazy(target string) error              { return errUnsupportedPlatform }
func (hostKernel) filesystemMagic(path string) (uint32, error) { return 0, errUnsupportedPlatform }

func (hostKernel) mountOverlay(target, lower, upper, work string) error {
	return errUnsupportedPlatform
}

func isUnsupportedMountError(err error) bool {
	return errors.Is(err, errUnsupportedPlatform)
}
