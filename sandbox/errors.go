// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/overrun/lib/process"
)

// Class identifies which stage of the pipeline failed.
type Class string

const (
	// ClassPrivilege: the elevation relay could not be run. No
	// resources are held.
	ClassPrivilege Class = "privilege"

	// ClassNamespace: unshare or the propagation change failed. No
	// mounts are held.
	ClassNamespace Class = "namespace"

	// ClassSetup: the target or scratch area is unusable. Nothing is
	// mounted.
	ClassSetup Class = "setup"

	// ClassUnsupportedFilesystem: the target or scratch directory lives
	// on a filesystem overlayfs cannot use, or the kernel has no
	// overlay support.
	ClassUnsupportedFilesystem Class = "unsupported-filesystem"

	// ClassMount: the snapshot bind or the overlay mount failed.
	// Whatever was mounted before has been detached.
	ClassMount Class = "mount"

	// ClassSpawn: the command could not be started. Synchronization
	// and teardown still ran.
	ClassSpawn Class = "spawn"

	// ClassSynchronize: reconciliation failed. Teardown still ran and
	// the exit code is unaffected.
	ClassSynchronize Class = "synchronize"

	// ClassUnmount: a teardown step failed. Logged, never escalated.
	ClassUnmount Class = "unmount"
)

// ErrUnsupportedFilesystem is wrapped by every ClassUnsupportedFilesystem
// error.
var ErrUnsupportedFilesystem = errors.New("filesystem does not support overlay mounts")

// Error is a failure of one pipeline stage.
type Error struct {
	Class Class
	// Op is the operation that failed, for example "bind" or "unshare".
	Op string
	// Path is the path the operation acted on, if any.
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Class, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode is the process exit code for a run that ended with this
// error.
func (e *Error) ExitCode() int {
	if e.Class == ClassSpawn {
		return process.SpawnFailureExitCode
	}
	return process.FailureExitCode
}

// ErrorClass returns the Class of the first *Error in err's chain, or
// "" if there is none.
func ErrorClass(err error) Class {
	var sandboxErr *Error
	if errors.As(err, &sandboxErr) {
		return sandboxErr.Class
	}
	return ""
}
