// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/overrun/lib/process"
)

// interceptedSignals no longer terminate the orchestrator, which still
// has mounts to release.
var interceptedSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGHUP,
	syscall.SIGQUIT,
}

// keyboardSignal reports whether sig is one the terminal sends to the
// whole foreground process group. The child already received it, so
// it is swallowed rather than relayed a second time.
func keyboardSignal(sig os.Signal) bool {
	return sig == syscall.SIGINT || sig == syscall.SIGQUIT
}

// Executor runs a command and waits for it.
type Executor struct {
	// Stdin, Stdout, and Stderr default to the orchestrator's own.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is the child's environment. Nil inherits the orchestrator's.
	Env []string

	Logger *slog.Logger
}

// Run starts command with dir as its working directory and blocks until
// it exits. It returns the child's exit code as os/exec reports it (-1
// for a signal-terminated child).
//
// If the command cannot be started at all, Run returns
// process.SpawnFailureExitCode and a ClassSpawn *Error. Run must be
// called from the goroutine that owns the mount namespace, since the
// child is forked from the calling thread.
func (e *Executor) Run(dir string, command []string) (int, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if len(command) == 0 {
		return process.SpawnFailureExitCode, &Error{Class: ClassSpawn, Op: "start", Err: errors.New("empty command")}
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Env = e.Env
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// Catch signals before the child exists so none slips through
	// between Start and the forwarder.
	signals := make(chan os.Signal, len(interceptedSignals))
	signal.Notify(signals, interceptedSignals...)
	defer signal.Stop(signals)

	if err := cmd.Start(); err != nil {
		return process.SpawnFailureExitCode, &Error{Class: ClassSpawn, Op: "start", Path: command[0], Err: err}
	}

	logger.Info("command started", "command", command, "dir", dir, "pid", cmd.Process.Pid)

	done := make(chan struct{})
	defer close(done)
	go forward(signals, done, cmd.Process, logger)

	err := cmd.Wait()
	code := cmd.ProcessState.ExitCode()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
	default:
		// The child ran but I/O copying failed; the exit status is
		// still authoritative.
		logger.Warn("command I/O failed", "error", err)
	}

	logger.Info("command exited", "command", command, "exit_code", code, "status", cmd.ProcessState.String())
	return code, nil
}

// forward relays signals to target until done is closed. SIGINT and
// SIGQUIT are dropped.
func forward(signals <-chan os.Signal, done <-chan struct{}, target *os.Process, logger *slog.Logger) {
	for {
		select {
		case sig := <-signals:
			if keyboardSignal(sig) {
				logger.Debug("not forwarding keyboard signal", "signal", sig.String(), "pid", target.Pid)
				continue
			}
			logger.Debug("forwarding signal", "signal", sig.String(), "pid", target.Pid)
			if err := target.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logger.Warn("forwarding signal failed", "signal", sig.String(), "error", err)
			}
		case <-done:
			return
		}
	}
}
