// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"

	"github.com/bureau-foundation/overrun/lib/process"
)

// PrivilegeGate ensures the orchestrator runs as root. Namespace
// creation and mounting need CAP_SYS_ADMIN, which overrun obtains by
// being the superuser rather than through a user namespace.
type PrivilegeGate struct {
	// Relay is the elevation program, for example "sudo". It is
	// invoked as: Relay RelayArgs... Executable Args...
	Relay     string
	RelayArgs []string

	// Executable is the binary to re-invoke. Empty uses os.Executable().
	Executable string

	// Args are the original arguments, without argv[0]. Nil uses
	// os.Args[1:].
	Args []string

	// Stdin, Stdout, and Stderr of the relay default to the process's
	// own.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	Logger *slog.Logger

	// geteuid is os.Geteuid outside tests.
	geteuid func() int
}

// Elevate returns immediately with relayed=false when the process is
// already root. Otherwise it runs the relay, waits for it, and returns
// relayed=true with the relay's exit code, which the caller must exit
// with without doing anything else.
//
// A relay that cannot be started returns a ClassPrivilege error. No
// resources are held at this point, so there is nothing to clean up.
func (g *PrivilegeGate) Elevate() (relayed bool, exitCode int, err error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	geteuid := g.geteuid
	if geteuid == nil {
		geteuid = os.Geteuid
	}

	if geteuid() == 0 {
		return false, 0, nil
	}

	if g.Relay == "" {
		return false, process.FailureExitCode, &Error{Class: ClassPrivilege, Op: "elevate", Err: errors.New("not root and no elevation relay configured")}
	}

	executable := g.Executable
	if executable == "" {
		executable, err = os.Executable()
		if err != nil {
			return false, process.FailureExitCode, &Error{Class: ClassPrivilege, Op: "locate executable", Err: err}
		}
	}
	args := g.Args
	if args == nil {
		args = os.Args[1:]
	}

	relayArgs := make([]string, 0, len(g.RelayArgs)+1+len(args))
	relayArgs = append(relayArgs, g.RelayArgs...)
	relayArgs = append(relayArgs, executable)
	relayArgs = append(relayArgs, args...)

	cmd := exec.Command(g.Relay, relayArgs...)
	cmd.Stdin = orDefault(g.Stdin, os.Stdin)
	cmd.Stdout = orDefault(g.Stdout, os.Stdout)
	cmd.Stderr = orDefault(g.Stderr, os.Stderr)

	signals := make(chan os.Signal, len(interceptedSignals))
	signal.Notify(signals, interceptedSignals...)
	defer signal.Stop(signals)

	logger.Debug("elevating", "relay", g.Relay, "args", relayArgs)
	if err := cmd.Start(); err != nil {
		return false, process.FailureExitCode, &Error{Class: ClassPrivilege, Op: "start relay", Path: g.Relay, Err: err}
	}

	done := make(chan struct{})
	defer close(done)
	go forward(signals, done, cmd.Process, logger)

	var exitErr *exec.ExitError
	if err := cmd.Wait(); err != nil && !errors.As(err, &exitErr) {
		return true, process.FailureExitCode, &Error{Class: ClassPrivilege, Op: "wait relay", Path: g.Relay, Err: err}
	}

	code := process.ExitCode(cmd.ProcessState.ExitCode())
	logger.Debug("elevated run finished", "exit_code", code)
	return true, code, nil
}

func orDefault(file, fallback *os.File) *os.File {
	if file == nil {
		return fallback
	}
	return file
}
