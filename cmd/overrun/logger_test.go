// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/bureau-foundation/overrun/lib/config"
)

func TestNewHandler_Format(t *testing.T) {
	tests := []struct {
		format   string
		terminal bool
		wantJSON bool
	}{
		{"text", false, false},
		{"json", true, true},
		{"auto", true, false},
		{"auto", false, true},
	}

	for _, tt := range tests {
		var buffer bytes.Buffer
		logger := slog.New(newHandler(config.LogConfig{Level: "info", Format: tt.format}, &buffer, tt.terminal))
		logger.Info("hello", "key", "value")

		isJSON := strings.HasPrefix(buffer.String(), "{")
		if isJSON != tt.wantJSON {
			t.Errorf("format %q terminal=%v: output %q, want JSON=%v", tt.format, tt.terminal, buffer.String(), tt.wantJSON)
		}
	}
}

func TestNewHandler_Level(t *testing.T) {
	t.Setenv(debugEnvironmentVariable, "")

	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		handler := newHandler(config.LogConfig{Level: tt.level, Format: "text"}, &bytes.Buffer{}, false)
		if !handler.Enabled(context.Background(), tt.want) {
			t.Errorf("level %q: %v not enabled", tt.level, tt.want)
		}
		if handler.Enabled(context.Background(), tt.want-1) {
			t.Errorf("level %q: %v enabled", tt.level, tt.want-1)
		}
	}
}

func TestNewHandler_DebugEnvironment(t *testing.T) {
	t.Setenv(debugEnvironmentVariable, "1")

	handler := newHandler(config.LogConfig{Level: "error", Format: "json"}, &bytes.Buffer{}, false)
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Errorf("%s did not enable debug logging", debugEnvironmentVariable)
	}
}
