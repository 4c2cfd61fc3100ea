// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/bureau-foundation/overrun/lib/delta"
	"github.com/bureau-foundation/overrun/lib/process"
)

// Synchronizer reconciles the overlay view of a directory into its
// original contents. overlayPath is the overlay-backed target; basePath
// is the snapshot binding of the real directory.
type Synchronizer interface {
	Synchronize(overlayPath, basePath string) error
}

// SynchronizerFunc adapts a function to Synchronizer.
type SynchronizerFunc func(overlayPath, basePath string) error

// Synchronize calls f.
func (f SynchronizerFunc) Synchronize(overlayPath, basePath string) error {
	return f(overlayPath, basePath)
}

// Config holds configuration for creating a new Sandbox.
type Config struct {
	// Target is the directory to overlay. Empty means the current
	// directory. It is canonicalized by New.
	Target string

	// Command is the command vector to run inside the overlay.
	Command []string

	// Scratch places the scratch area. It must not lie inside Target.
	Scratch ScratchOptions

	// Synchronizer reconciles the overlay into the real directory after
	// the command exits. Required.
	Synchronizer Synchronizer

	// DeltaArchive, if set, is the path of a tar archive written with
	// the overlay upper layer after the command exits. It must not lie
	// inside Target.
	DeltaArchive string

	// DeltaRecipients are age public keys the delta archive is
	// encrypted to. Required when DeltaArchive ends in ".age", and
	// rejected otherwise.
	DeltaRecipients []string

	// Stdin, Stdout, and Stderr of the command default to the
	// orchestrator's own.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger for sandbox operations.
	Logger *slog.Logger
}

// Sandbox runs one command over one target directory.
type Sandbox struct {
	target          string
	command         []string
	scratch         ScratchOptions
	synchronizer    Synchronizer
	deltaArchive    string
	deltaRecipients []string
	stdin           io.Reader
	stdout          io.Writer
	stderr          io.Writer
	logger          *slog.Logger
	kernel          kernel
}

// Result describes a completed run. A run is complete once the overlay
// was mounted; everything after that is reported here rather than as an
// error.
type Result struct {
	// ExitCode is the process exit code for the run.
	ExitCode int

	// CommandExitCode is the exit code os/exec reported for the child,
	// or process.SpawnFailureExitCode if it never started.
	CommandExitCode int

	// SpawnErr is set if the command could not be started.
	SpawnErr error

	// DeltaSummary describes the archived upper layer, if archiving was
	// configured and succeeded.
	DeltaSummary *delta.Summary

	// DeltaErr is set if archiving was configured and failed.
	DeltaErr error

	// SynchronizeErr is set if reconciliation failed.
	SynchronizeErr error

	// TeardownErr is set if any teardown step failed.
	TeardownErr error
}

// New creates a new Sandbox. It canonicalizes the target and checks the
// configuration, but acquires no resources.
func New(config Config) (*Sandbox, error) {
	if len(config.Command) == 0 {
		return nil, &Error{Class: ClassSetup, Op: "configure", Err: errors.New("command is required")}
	}
	if config.Synchronizer == nil {
		return nil, &Error{Class: ClassSetup, Op: "configure", Err: errors.New("synchronizer is required")}
	}

	target, err := canonicalizeTarget(config.Target)
	if err != nil {
		return nil, &Error{Class: ClassSetup, Op: "resolve target", Path: config.Target, Err: err}
	}

	scratch := config.Scratch
	if scratch.Directory != "" {
		scratch.Directory, err = filepath.Abs(scratch.Directory)
		if err != nil {
			return nil, &Error{Class: ClassSetup, Op: "resolve scratch directory", Path: config.Scratch.Directory, Err: err}
		}
		if within(resolveExisting(scratch.Directory), target) {
			return nil, &Error{Class: ClassSetup, Op: "configure", Path: scratch.Directory,
				Err: fmt.Errorf("scratch directory is inside the target %s", target)}
		}
		if err := validateOverlayPath(scratch.Directory, "scratch"); err != nil {
			return nil, &Error{Class: ClassSetup, Op: "configure", Err: err}
		}
	}

	deltaArchive := config.DeltaArchive
	if deltaArchive != "" {
		if err := delta.CheckDestination(deltaArchive, config.DeltaRecipients); err != nil {
			return nil, &Error{Class: ClassSetup, Op: "configure", Err: err}
		}
		deltaArchive, err = filepath.Abs(deltaArchive)
		if err != nil {
			return nil, &Error{Class: ClassSetup, Op: "resolve delta archive", Path: config.DeltaArchive, Err: err}
		}
		if within(resolveExisting(deltaArchive), target) {
			return nil, &Error{Class: ClassSetup, Op: "configure", Path: deltaArchive,
				Err: fmt.Errorf("delta archive is inside the target %s", target)}
		}
	} else if len(config.DeltaRecipients) > 0 {
		return nil, &Error{Class: ClassSetup, Op: "configure", Err: errors.New("delta recipients are configured without a delta archive")}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sandbox{
		target:          target,
		command:         config.Command,
		scratch:         scratch,
		synchronizer:    config.Synchronizer,
		deltaArchive:    deltaArchive,
		deltaRecipients: config.DeltaRecipients,
		stdin:           config.Stdin,
		stdout:          config.Stdout,
		stderr:          config.Stderr,
		logger:          logger.With("target", target),
		kernel:          newHostKernel(),
	}, nil
}

// Target returns the canonical target path.
func (s *Sandbox) Target() string {
	return s.target
}

// Run isolates the mount namespace, builds the overlay, runs the
// command, archives the delta if configured, synchronizes, and tears
// down. It must be called at most once, and the calling goroutine stays
// locked to its OS thread afterwards (see Isolate).
//
// A non-nil error means the run failed before the command could start
// (namespace, setup, or mount failure); the returned Result then
// carries process.FailureExitCode and nothing is left mounted. Once the
// overlay is mounted Run always returns a nil error, and failures of
// later steps are recorded in the Result.
func (s *Sandbox) Run() (*Result, error) {
	failed := &Result{
		ExitCode:        process.FailureExitCode,
		CommandExitCode: process.FailureExitCode,
	}

	namespace, err := isolate(s.kernel, s.logger)
	if err != nil {
		return failed, err
	}

	if err := checkFilesystem(s.kernel, s.target, "target", unsupportedLowerFilesystems); err != nil {
		return failed, err
	}
	scratchParent := s.scratch.Directory
	if scratchParent == "" {
		scratchParent = tempDir()
	}
	if err := checkFilesystem(s.kernel, scratchParent, "scratch", unsupportedUpperFilesystems); err != nil {
		return failed, err
	}

	overlay, err := namespace.BuildOverlay(s.target, s.scratch)
	if err != nil {
		return failed, err
	}

	result := &Result{}
	defer func() {
		result.TeardownErr = overlay.Teardown()
	}()

	executor := &Executor{
		Stdin:  s.stdin,
		Stdout: s.stdout,
		Stderr: s.stderr,
		Logger: s.logger,
	}
	code, err := executor.Run(s.target, s.command)
	if err != nil {
		result.SpawnErr = err
		s.logger.Error("command could not be started", "command", s.command, "error", err)
	}
	result.CommandExitCode = code
	result.ExitCode = process.ExitCode(code)

	if s.deltaArchive != "" {
		summary, err := delta.Write(overlay.Delta, s.deltaArchive, s.deltaRecipients...)
		if err != nil {
			result.DeltaErr = err
			s.logger.Error("writing delta archive failed", "archive", s.deltaArchive, "error", err)
		} else {
			result.DeltaSummary = summary
			s.logger.Info("delta archived",
				"archive", s.deltaArchive,
				"files", summary.Files,
				"directories", summary.Directories,
				"whiteouts", summary.Whiteouts,
				"bytes", summary.Bytes,
				"encrypted", delta.IsEncrypted(s.deltaArchive),
			)
		}
	}

	if err := s.synchronizer.Synchronize(s.target, overlay.Snapshot); err != nil {
		result.SynchronizeErr = &Error{Class: ClassSynchronize, Op: "synchronize", Path: s.target, Err: err}
		s.logger.Error("synchronizing changes failed", "error", err)
	}

	return result, nil
}
