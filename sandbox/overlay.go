// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Names of the scratch area subdirectories.
const (
	snapshotDirectoryName = "snapshot"
	deltaDirectoryName    = "delta"
	workDirectoryName     = "work"
)

// ScratchOptions place the per-run scratch area.
type ScratchOptions struct {
	// Directory is the parent of the scratch area. Empty uses
	// os.TempDir().
	Directory string

	// Prefix is the name prefix of the scratch area; a random suffix
	// makes it unique.
	Prefix string
}

// Overlay is a copy-on-write view mounted over a target directory.
//
// Security invariant: the overlay's lower layer is the snapshot
// binding, never the live target path, so the overlay is only mounted
// once the snapshot exists.
type Overlay struct {
	// Target is the canonical directory the overlay is mounted on.
	Target string

	// Scratch is the per-run scratch area holding the three
	// directories below.
	Scratch string

	// Snapshot is where the target's original tree is bound. Writes
	// here land in the real directory.
	Snapshot string

	// Delta is the overlay upper layer: everything the command wrote.
	Delta string

	// Work is the overlay work directory.
	Work string

	logger   *slog.Logger
	releaser releaser

	// snapshotAttached is true while the snapshot binding may still be
	// reachable under Scratch. Recursive removal of Scratch is only
	// safe when it is false.
	snapshotAttached bool
}

// BuildOverlay allocates a scratch area, binds target onto its snapshot
// directory, and mounts an overlay at target. target must be canonical
// (absolute, symlinks resolved).
//
// On failure every step that succeeded is undone in reverse order
// before the error is returned: a failed overlay mount detaches the
// snapshot, and the scratch area is always discarded.
func (n *Namespace) BuildOverlay(target string, scratch ScratchOptions) (*Overlay, error) {
	parent := scratch.Directory
	if parent == "" {
		parent = tempDir()
	}

	overlay := &Overlay{
		Target: target,
		logger: n.logger,
	}

	scratchDirectory, err := os.MkdirTemp(parent, scratch.Prefix)
	if err != nil {
		return nil, &Error{Class: ClassSetup, Op: "create scratch area", Path: parent, Err: err}
	}
	overlay.Scratch = scratchDirectory
	overlay.releaser.push("remove scratch area", overlay.removeScratch)

	overlay.Snapshot = filepath.Join(scratchDirectory, snapshotDirectoryName)
	overlay.Delta = filepath.Join(scratchDirectory, deltaDirectoryName)
	overlay.Work = filepath.Join(scratchDirectory, workDirectoryName)

	for _, directory := range []string{overlay.Snapshot, overlay.Delta, overlay.Work} {
		if err := validateOverlayPath(directory, filepath.Base(directory)); err != nil {
			return nil, overlay.abort(&Error{Class: ClassSetup, Op: "validate scratch area", Path: directory, Err: err})
		}
		if err := os.Mkdir(directory, 0700); err != nil {
			return nil, overlay.abort(&Error{Class: ClassSetup, Op: "create scratch area", Path: directory, Err: err})
		}
	}

	// The merged root takes its attributes from the upper layer.
	if err := copyDirectoryAttributes(target, overlay.Delta); err != nil {
		return nil, overlay.abort(&Error{Class: ClassSetup, Op: "copy target attributes", Path: overlay.Delta, Err: err})
	}

	if err := n.kernel.bindRecursive(target, overlay.Snapshot); err != nil {
		return nil, overlay.abort(&Error{Class: ClassMount, Op: "bind snapshot", Path: overlay.Snapshot, Err: err})
	}
	overlay.snapshotAttached = true
	overlay.releaser.push("detach snapshot", func() error {
		if err := n.kernel.detachLazy(overlay.Snapshot); err != nil {
			return &Error{Class: ClassUnmount, Op: "detach snapshot", Path: overlay.Snapshot, Err: err}
		}
		overlay.snapshotAttached = false
		return nil
	})
	n.logger.Debug("snapshot bound", "target", target, "snapshot", overlay.Snapshot)

	if err := n.kernel.mountOverlay(target, overlay.Snapshot, overlay.Delta, overlay.Work); err != nil {
		class := ClassMount
		if isUnsupportedMountError(err) {
			class = ClassUnsupportedFilesystem
			err = fmt.Errorf("%w: %w", ErrUnsupportedFilesystem, err)
		}
		return nil, overlay.abort(&Error{Class: class, Op: "mount overlay", Path: target, Err: err})
	}
	overlay.releaser.push("detach overlay", func() error {
		if err := n.kernel.detachLazy(target); err != nil {
			return &Error{Class: ClassUnmount, Op: "detach overlay", Path: target, Err: err}
		}
		return nil
	})
	n.logger.Debug("overlay mounted",
		"target", target,
		"lower", overlay.Snapshot,
		"upper", overlay.Delta,
		"work", overlay.Work,
	)

	return overlay, nil
}

// abort releases everything acquired so far and returns cause. Release
// errors are logged and never replace cause.
func (o *Overlay) abort(cause error) error {
	if err := o.releaser.releaseAll(); err != nil {
		o.logger.Warn("cleanup after failed overlay setup incomplete", "error", err)
	}
	return cause
}

// Teardown detaches the overlay, then the snapshot, then removes the
// scratch area. Every step is attempted even if an earlier one fails;
// the failures are logged and returned joined. Calling Teardown again
// is a no-op.
func (o *Overlay) Teardown() error {
	err := o.releaser.releaseAll()
	if err != nil {
		o.logger.Warn("teardown incomplete", "target", o.Target, "error", err)
	} else {
		o.logger.Debug("overlay torn down", "target", o.Target)
	}
	return err
}

// removeScratch discards the scratch area. While the snapshot may still
// be attached, a recursive removal would descend into the real target,
// so only the delta and work directories are removed and the rest is
// left behind.
func (o *Overlay) removeScratch() error {
	if o.snapshotAttached {
		err := errors.Join(os.RemoveAll(o.Delta), os.RemoveAll(o.Work))
		if err != nil {
			return &Error{Class: ClassUnmount, Op: "remove scratch area", Path: o.Scratch, Err: err}
		}
		return &Error{
			Class: ClassUnmount,
			Op:    "remove scratch area",
			Path:  o.Scratch,
			Err:   fmt.Errorf("snapshot still attached at %s; leaving it in place", o.Snapshot),
		}
	}
	if err := os.RemoveAll(o.Scratch); err != nil {
		return &Error{Class: ClassUnmount, Op: "remove scratch area", Path: o.Scratch, Err: err}
	}
	return nil
}

// releaser is a stack of undo steps for resources acquired in order.
type releaser struct {
	steps []releaseStep
}

type releaseStep struct {
	name    string
	release func() error
}

func (r *releaser) push(name string, release func() error) {
	r.steps = append(r.steps, releaseStep{name: name, release: release})
}

// releaseAll runs every step in reverse order of acquisition and
// empties the stack. A failing step does not stop the others.
func (r *releaser) releaseAll() error {
	var errs []error
	for i := len(r.steps) - 1; i >= 0; i-- {
		if err := r.steps[i].release(); err != nil {
			errs = append(errs, err)
		}
	}
	r.steps = nil
	return errors.Join(errs...)
}
