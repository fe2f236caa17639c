// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tc := range cases {
		got, err := parseLevel(tc.in)
		if err != nil {
			t.Errorf("parseLevel(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := parseLevel("verbose"); err == nil {
		t.Error("Unknown level accepted")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("unknown level rejected", func(t *testing.T) {
		if _, err := NewLogger(Config{Level: "loud"}); err == nil {
			t.Error("Expected error for unknown level")
		}
	})

	t.Run("file logging creates the daily file", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := NewLogger(Config{
			Level:   "info",
			LogDir:  dir,
			Service: "auditor",
			Quiet:   true,
		})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("Session started", "session_id", "s-1")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		name := "auditor_" + time.Now().Format("2006-01-02") + ".log"
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Log file missing: %v", err)
		}
		if !strings.Contains(string(data), "Session started") {
			t.Errorf("Log file content = %q", data)
		}
		if !strings.Contains(string(data), `"service":"auditor"`) {
			t.Error("Service attribute missing from file log")
		}
	})
}

func TestLogger_Exporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger, err := NewLogger(Config{
		Level:    "info",
		Service:  "auditor",
		Quiet:    true,
		Exporter: exporter,
	})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("tool finished", "tool", "clone_repository")
	logger.Debug("below level, not exported")

	// Export is asynchronous; poll briefly.
	deadline := time.After(2 * time.Second)
	for len(exporter.Entries()) == 0 {
		select {
		case <-deadline:
			t.Fatal("Entry never exported")
		case <-time.After(10 * time.Millisecond):
		}
	}

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries = %d, want 1", len(entries))
	}
	if entries[0].Message != "tool finished" || entries[0].Attrs["tool"] != "clone_repository" {
		t.Errorf("Entry = %+v", entries[0])
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestLogger_With(t *testing.T) {
	logger, err := NewLogger(Config{Quiet: true})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	child := logger.With("session_id", "s-1")
	if child.Slog() == logger.Slog() {
		t.Error("With returned the parent's slog instance")
	}
}
