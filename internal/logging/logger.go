// Package logging builds the process-wide slog logger. Format and level
// come from LOG_FORMAT (json or text) and LOG_LEVEL (debug through
// error); every record carries the app name and the command that is
// running so multi-command deployments stay greppable.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	EnvFormat = "LOG_FORMAT"
	EnvLevel  = "LOG_LEVEL"
)

// Settings is one resolved logging configuration.
type Settings struct {
	Format string
	Level  slog.Level
}

// Default is JSON at info, the production shape.
func Default() Settings {
	return Settings{Format: "json", Level: slog.LevelInfo}
}

// FromEnv reads LOG_FORMAT and LOG_LEVEL, falling back to Default for
// unset variables. Set-but-invalid values are an error rather than a
// silent downgrade.
func FromEnv() (Settings, error) {
	s := Default()

	if raw := strings.ToLower(strings.TrimSpace(os.Getenv(EnvFormat))); raw != "" {
		if raw != "json" && raw != "text" {
			return Settings{}, fmt.Errorf("%s must be one of: json, text", EnvFormat)
		}
		s.Format = raw
	}

	if raw := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLevel))); raw != "" {
		level, ok := map[string]slog.Level{
			"debug": slog.LevelDebug,
			"info":  slog.LevelInfo,
			"warn":  slog.LevelWarn,
			"error": slog.LevelError,
		}[raw]
		if !ok {
			return Settings{}, fmt.Errorf("%s must be one of: debug, info, warn, error", EnvLevel)
		}
		s.Level = level
	}

	return s, nil
}

// Logger builds a logger writing to w, tagged with the running command.
func (s Settings) Logger(w io.Writer, command string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: s.Level}
	var handler slog.Handler
	if s.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	command = strings.TrimSpace(command)
	if command == "" {
		command = "hubboard"
	}
	return slog.New(handler).With("app", "hubboard", "command", command)
}

// Install resolves settings from the environment, builds the logger, and
// makes it the slog default.
func Install(w io.Writer, command string) (*slog.Logger, error) {
	s, err := FromEnv()
	if err != nil {
		return nil, err
	}
	logger := s.Logger(w, command)
	slog.SetDefault(logger)
	return logger, nil
}
