// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/bureau-foundation/overrun/lib/process"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := &Error{Class: ClassMount, Op: "bind snapshot", Path: "/tmp/s/snapshot", Err: os.ErrPermission}
	if want := "mount: bind snapshot /tmp/s/snapshot: permission denied"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("Error does not unwrap to its cause")
	}

	noPath := &Error{Class: ClassNamespace, Op: "unshare", Err: os.ErrPermission}
	if want := "namespace: unshare: permission denied"; noPath.Error() != want {
		t.Errorf("Error() = %q, want %q", noPath.Error(), want)
	}
}

func TestErrorExitCode(t *testing.T) {
	t.Parallel()

	for _, class := range []Class{
		ClassPrivilege, ClassNamespace, ClassSetup, ClassUnsupportedFilesystem,
		ClassMount, ClassSynchronize, ClassUnmount,
	} {
		err := &Error{Class: class, Op: "op", Err: errors.New("x")}
		if code := err.ExitCode(); code != process.FailureExitCode {
			t.Errorf("%s ExitCode = %d, want %d", class, code, process.FailureExitCode)
		}
	}
	spawn := &Error{Class: ClassSpawn, Op: "start", Err: errors.New("x")}
	if code := spawn.ExitCode(); code != process.SpawnFailureExitCode {
		t.Errorf("spawn ExitCode = %d, want %d", code, process.SpawnFailureExitCode)
	}
}

func TestErrorClass(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("running: %w", &Error{Class: ClassUnmount, Op: "detach overlay", Err: errors.New("busy")})
	if class := ErrorClass(wrapped); class != ClassUnmount {
		t.Errorf("ErrorClass = %q, want %q", class, ClassUnmount)
	}
	if class := ErrorClass(errors.New("plain")); class != "" {
		t.Errorf("ErrorClass(plain) = %q, want empty", class)
	}
	if class := ErrorClass(nil); class != "" {
		t.Errorf("ErrorClass(nil) = %q, want empty", class)
	}
}
