package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv(EnvFormat, "")
	t.Setenv(EnvLevel, "")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if s != Default() {
		t.Fatalf("FromEnv() = %+v, want defaults", s)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvFormat, "text")
	t.Setenv(EnvLevel, "debug")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if s.Format != "text" || s.Level != slog.LevelDebug {
		t.Fatalf("FromEnv() = %+v", s)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv(EnvFormat, "yaml")
	t.Setenv(EnvLevel, "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected invalid LOG_FORMAT error")
	}

	t.Setenv(EnvFormat, "")
	t.Setenv(EnvLevel, "trace")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected invalid LOG_LEVEL error")
	}
}

func TestLoggerTagsEveryRecord(t *testing.T) {
	var out bytes.Buffer
	logger := Default().Logger(&out, "hubboard serve")
	logger.Info("hello")

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected a JSON log line")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["app"]; got != "hubboard" {
		t.Fatalf("app = %v, want %q", got, "hubboard")
	}
	if got := payload["command"]; got != "hubboard serve" {
		t.Fatalf("command = %v, want %q", got, "hubboard serve")
	}
}

func TestLoggerHonorsLevel(t *testing.T) {
	var out bytes.Buffer
	logger := Default().Logger(&out, "hubboard serve")
	logger.Debug("too quiet")
	if out.Len() != 0 {
		t.Fatalf("debug record emitted at info level: %s", out.String())
	}
}
