// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

// kernel is the set of mount-table operations the pipeline needs. The
// Linux implementation issues the syscalls directly; tests substitute
// a recording fake to check ordering and inject failures.
type kernel interface {
	// unshareMountNamespace detaches the calling thread's mount table
	// into a private copy (unshare(CLONE_NEWNS)).
	unshareMountNamespace() error

	// makeRootPrivate marks / and everything below it as
	// non-propagating (MS_REC|MS_PRIVATE).
	makeRootPrivate() error

	// bindRecursive bind-mounts source onto target including submounts
	// (MS_BIND|MS_REC).
	bindRecursive(source, target string) error

	// mountOverlay mounts an overlay at target.
	mountOverlay(target, lower, upper, work string) error

	// detachLazy unmounts target with MNT_DETACH: the mount disappears
	// from the namespace immediately and is released when its last
	// reference drops.
	detachLazy(target string) error

	// filesystemMagic returns the statfs f_type of the filesystem
	// containing path.
	filesystemMagic(path string) (uint32, error)
}

// overlayOptions formats the mount data for an overlay mount.
func overlayOptions(lower, upper, work string) string {
	return "lowerdir=" + lower + ",upperdir=" + upper + ",workdir=" + work
}
