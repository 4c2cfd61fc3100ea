// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/overrun/lib/config"
)

// debugEnvironmentVariable forces debug logging when set to any
// non-empty value.
const debugEnvironmentVariable = "OVERRUN_DEBUG"

// newLogger creates the structured logger for an invocation. In auto
// format, output goes through slog.TextHandler when it is a terminal
// and slog.JSONHandler when it is piped or redirected.
func newLogger(settings config.LogConfig, output *os.File) *slog.Logger {
	terminal := term.IsTerminal(int(output.Fd()))
	return slog.New(newHandler(settings, output, terminal))
}

func newHandler(settings config.LogConfig, output io.Writer, terminal bool) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(settings.Level)); err != nil {
		level = slog.LevelInfo
	}
	if os.Getenv(debugEnvironmentVariable) != "" {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}

	switch settings.Format {
	case "text":
		return slog.NewTextHandler(output, options)
	case "json":
		return slog.NewJSONHandler(output, options)
	}
	if terminal {
		return slog.NewTextHandler(output, options)
	}
	return slog.NewJSONHandler(output, options)
}
