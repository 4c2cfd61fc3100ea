// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Filesystem magic numbers (statfs f_type) that overlayfs cannot use.
// Network filesystems lack the consistency guarantees overlayfs needs
// from its layers; an overlay cannot serve as an upper layer.
var (
	unsupportedLowerFilesystems = map[uint32]string{
		0x6969:     "nfs",
		0x517b:     "smb",
		0xff534d42: "cifs",
		0xfe534d42: "smb2",
		0x00c36400: "ceph",
		0x5346414f: "afs",
		0x01021997: "9p",
	}

	unsupportedUpperFilesystems = map[uint32]string{
		0x6969:     "nfs",
		0x517b:     "smb",
		0xff534d42: "cifs",
		0xfe534d42: "smb2",
		0x00c36400: "ceph",
		0x5346414f: "afs",
		0x01021997: "9p",
		0x794c7630: "overlay",
	}
)

// checkFilesystem returns a ClassUnsupportedFilesystem error when path
// lives on a filesystem listed in unsupported. role names the layer
// ("target" or "scratch") in the message.
func checkFilesystem(k kernel, path, role string, unsupported map[uint32]string) error {
	magic, err := k.filesystemMagic(path)
	if err != nil {
		return &Error{Class: ClassSetup, Op: "statfs " + role, Path: path, Err: err}
	}
	if name, ok := unsupported[magic]; ok {
		return &Error{
			Class: ClassUnsupportedFilesystem,
			Op:    "check " + role,
			Path:  path,
			Err:   fmt.Errorf("%w: %s is on %s", ErrUnsupportedFilesystem, role, name),
		}
	}
	return nil
}

// Capabilities describes what sandbox features are available on this
// system.
type Capabilities struct {
	// Root is true if the effective uid is 0.
	Root bool

	// MountNamespaces is true if the kernel exposes mount namespaces.
	MountNamespaces bool

	// OverlayFilesystem is true if overlay is listed in
	// /proc/filesystems. The module may also be loadable on demand, so
	// false is a strong hint rather than proof.
	OverlayFilesystem bool
}

// DetectCapabilities checks what sandbox features are available.
func DetectCapabilities() *Capabilities {
	caps := &Capabilities{
		Root: os.Geteuid() == 0,
	}

	if _, err := os.Stat("/proc/self/ns/mnt"); err == nil {
		caps.MountNamespaces = true
	}

	caps.OverlayFilesystem = filesystemListed("/proc/filesystems", "overlay")

	return caps
}

// CanRunSandbox returns true if a sandboxed run can be attempted
// in-process, without elevation.
func (c *Capabilities) CanRunSandbox() bool {
	return c.Root && c.MountNamespaces && c.OverlayFilesystem
}

// SkipReason returns a human-readable reason why sandboxing isn't
// available in-process, or empty string if it is.
func (c *Capabilities) SkipReason() string {
	if !c.MountNamespaces {
		return "mount namespaces not available"
	}
	if !c.OverlayFilesystem {
		return "overlay filesystem not listed in /proc/filesystems"
	}
	if !c.Root {
		return "not running as root"
	}
	return ""
}

// filesystemListed reports whether name appears as a filesystem type
// in a /proc/filesystems style file ("[nodev]\tname" per line).
func filesystemListed(path, name string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[len(fields)-1] == name {
			return true
		}
	}
	return false
}
