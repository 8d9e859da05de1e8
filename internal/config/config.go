package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr      = ":8080"
	defaultMetricsAddr   = ""
	defaultProbeInterval = 5 * time.Minute
	defaultFetchTimeout  = 15 * time.Second
)

type Config struct {
	DatabaseURL   string
	HTTPAddr      string
	MetricsAddr   string
	ProbeInterval time.Duration
	ProbeEnabled  bool
	FetchTimeout  time.Duration
	PlexClientID  string
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		HTTPAddr:      getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:   getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		ProbeInterval: defaultProbeInterval,
		ProbeEnabled:  getenvBoolDefault("PROBE_ENABLED", true),
		FetchTimeout:  defaultFetchTimeout,
		PlexClientID:  getenvDefault("PLEX_CLIENT_ID", "hubboard"),
	}

	if v := os.Getenv("PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ProbeInterval = d
		}
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.FetchTimeout = d
		}
	}

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1":
		return true
	case "0":
		return false
	default:
		return def
	}
}
