package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voicelink/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, `
services:
  agent:
    enabled: true
storage:
  backend: memory
`)
	out, err := execute(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "agent:         enabled") || !strings.Contains(out, "storage:       memory") {
		t.Errorf("output = %q", out)
	}
}

func TestValidate_Invalid(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: file\n")
	if _, err := execute(t, "validate", "--config", path); err == nil {
		t.Fatal("expected error for file backend without path")
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate_ExampleConfig(t *testing.T) {
	t.Setenv("VOICELINK_API_KEY", "test-key")
	if _, err := execute(t, "validate", "--config", "../../configs/example.yaml", "--env", filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("example config: %v", err)
	}
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "storage:\n  backend: file\n  path: "+filepath.Join(dir, "history.json")+"\n")

	out, err := execute(t, "history", "show", "--config", path)
	if err != nil {
		t.Fatalf("show empty: %v", err)
	}
	if !strings.Contains(out, "No conversation stored") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "history", "clear", "--config", path)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(out, "cleared") {
		t.Errorf("output = %q", out)
	}
}

func TestHistory_NoStorage(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: none\n")
	if _, err := execute(t, "history", "show", "--config", path); err == nil {
		t.Fatal("expected error without storage")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, level := newLogger(&buf, config.ServerConfig{LogLevel: config.LogWarn, LogFormat: config.LogJSON})

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	level.Set(-4)
	logger.Debug("after reload")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}
	if !strings.Contains(lines[1], "after reload") {
		t.Errorf("debug record missing after level change: %q", lines[1])
	}
}
