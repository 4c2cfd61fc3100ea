// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package sandbox

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/overrun/lib/process"
	"github.com/bureau-foundation/overrun/lib/testutil"
)

func TestExecutor_ExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"success", "exit 0", 0},
		{"failure", "exit 7", 7},
		{"maximum", "exit 255", 255},
		{"signaled", "kill -TERM $$", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &Executor{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
			code, err := executor.Run(t.TempDir(), []string{"/bin/sh", "-c", tt.script})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestExecutor_WorkingDirectoryAndOutput(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	executor := &Executor{
		Stdin:  strings.NewReader("from stdin"),
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
	}

	code, err := executor.Run(dir, []string{"/bin/sh", "-c", "pwd -P; cat; echo hi > b.txt"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if want := resolved + "\nfrom stdin"; stdout.String() != want {
		t.Errorf("stdout = %q, want %q", stdout.String(), want)
	}
	content, err := os.ReadFile(filepath.Join(dir, "b.txt"))
	if err != nil {
		t.Fatalf("reading b.txt: %v", err)
	}
	if string(content) != "hi\n" {
		t.Errorf("b.txt = %q, want %q", content, "hi\n")
	}
}

func TestExecutor_Environment(t *testing.T) {
	var stdout bytes.Buffer
	executor := &Executor{
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
		Env:    []string{"OVERRUN_TEST_VALUE=42"},
	}

	if _, err := executor.Run(t.TempDir(), []string{"/bin/sh", "-c", "echo $OVERRUN_TEST_VALUE"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stdout.String() != "42\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "42\n")
	}
}

func TestExecutor_SpawnFailure(t *testing.T) {
	tests := []struct {
		name    string
		command []string
	}{
		{"empty", nil},
		{"missing", []string{"overrun-test-command-that-does-not-exist"}},
		{"not executable", []string{"/dev/null"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &Executor{}
			code, err := executor.Run(t.TempDir(), tt.command)
			if code != process.SpawnFailureExitCode {
				t.Errorf("exit code = %d, want %d", code, process.SpawnFailureExitCode)
			}
			if class := ErrorClass(err); class != ClassSpawn {
				t.Errorf("ErrorClass(%v) = %q, want %q", err, class, ClassSpawn)
			}
			var sandboxErr *Error
			if errors.As(err, &sandboxErr) && sandboxErr.ExitCode() != process.SpawnFailureExitCode {
				t.Errorf("Error.ExitCode = %d, want %d", sandboxErr.ExitCode(), process.SpawnFailureExitCode)
			}
		})
	}
}

func TestForward(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	t.Cleanup(func() { cmd.Process.Kill() })

	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	defer close(done)
	go forward(signals, done, cmd.Process, slog.Default())

	testutil.RequireSend(t, signals, os.Signal(syscall.SIGTERM), 5*time.Second, "queueing SIGTERM")

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()
	testutil.RequireReceive(t, waited, 10*time.Second, "waiting for child to exit after forwarded SIGTERM")

	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() || status.Signal() != syscall.SIGTERM {
		t.Errorf("child status = %v, want killed by SIGTERM", cmd.ProcessState)
	}
}

func TestForward_KeyboardSignalsNotRelayed(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	t.Cleanup(func() { cmd.Process.Kill() })

	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	defer close(done)
	go forward(signals, done, cmd.Process, slog.Default())

	// The terminal already delivered these to the child's process group.
	testutil.RequireSend(t, signals, os.Signal(syscall.SIGINT), 5*time.Second, "queueing SIGINT")
	testutil.RequireSend(t, signals, os.Signal(syscall.SIGQUIT), 5*time.Second, "queueing SIGQUIT")
	testutil.RequireSend(t, signals, os.Signal(syscall.SIGTERM), 5*time.Second, "queueing SIGTERM")

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()
	testutil.RequireReceive(t, waited, 10*time.Second, "waiting for child to exit after forwarded SIGTERM")

	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() || status.Signal() != syscall.SIGTERM {
		t.Errorf("child status = %v, want killed by SIGTERM only", cmd.ProcessState)
	}
}
