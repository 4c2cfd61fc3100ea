// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"log/slog"
	"runtime"
)

// Namespace is a private mount namespace owned by the calling
// goroutine's OS thread. Every mount of a run goes through it.
type Namespace struct {
	kernel kernel
	logger *slog.Logger
}

// Isolate detaches the calling thread into a private mount namespace
// and stops mount propagation from / downward, so nothing mounted
// afterwards is visible to, or affected by, any other namespace.
//
// The calling goroutine is locked to its OS thread and stays locked:
// the namespace belongs to that thread, and the runtime destroys the
// thread when the goroutine exits. Callers must perform every
// filesystem operation of the run, including starting the child, from
// the same goroutine.
func Isolate(logger *slog.Logger) (*Namespace, error) {
	return isolate(newHostKernel(), logger)
}

func isolate(k kernel, logger *slog.Logger) (*Namespace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	runtime.LockOSThread()

	if err := k.unshareMountNamespace(); err != nil {
		// The thread is unchanged, so it can go back to the pool.
		runtime.UnlockOSThread()
		return nil, &Error{Class: ClassNamespace, Op: "unshare", Err: err}
	}
	if err := k.makeRootPrivate(); err != nil {
		return nil, &Error{Class: ClassNamespace, Op: "make private", Path: "/", Err: err}
	}

	logger.Debug("mount namespace isolated")
	return &Namespace{kernel: k, logger: logger}, nil
}
