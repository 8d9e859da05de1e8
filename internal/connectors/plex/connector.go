package plex

import (
	"context"
	"fmt"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
)

const (
	MetricNowPlaying = "now-playing"
	MetricLibraries  = "libraries"
)

// Connector implements the connector contract for a Plex Media Server. The
// token is obtained either by pasting it in or through the PIN linking flow.
type Connector struct {
	Timeout time.Duration
}

func New(timeout time.Duration) *Connector {
	return &Connector{Timeout: timeout}
}

func (c *Connector) Kind() string        { return configstore.KindPlex }
func (c *Connector) DisplayName() string { return "Plex" }

func (c *Connector) DecodeConfig(raw []byte) (any, error) {
	cfg, err := configstore.DecodePlexConfig(raw)
	if err != nil {
		return nil, err
	}
	return cfg.Normalized(), nil
}

func (c *Connector) ValidateConfig(cfg any) error {
	typed, err := c.typedConfig(cfg)
	if err != nil {
		return err
	}
	return typed.Validate()
}

func (c *Connector) IsConfigured(cfg any) bool {
	typed, err := c.typedConfig(cfg)
	return err == nil && typed.Validate() == nil
}

func (c *Connector) SourceName(cfg any) string {
	typed, err := c.typedConfig(cfg)
	if err != nil {
		return ""
	}
	return typed.Endpoint()
}

func (c *Connector) TestConnection(ctx context.Context, raw []byte) registry.TestResult {
	cfg, err := configstore.DecodePlexConfig(raw)
	if err != nil {
		return registry.FailTest(err, "")
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return registry.FailTest(registry.ValidationErr(err), "")
	}

	client := NewClient(cfg.BaseURL(), cfg.Token, c.Timeout)
	info, err := client.ServerInfo(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}
	libraries, err := client.Libraries(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}

	return registry.TestResult{
		Success: true,
		Message: fmt.Sprintf("Connected to %s", info.FriendlyName),
		Details: map[string]any{
			"friendly_name": info.FriendlyName,
			"version":       info.Version,
			"libraries":     len(libraries),
		},
	}
}

func (c *Connector) FetchMetric(ctx context.Context, raw []byte, metricID string) (any, error) {
	cfg, err := configstore.DecodePlexConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, registry.ValidationErr(err)
	}

	return registry.Dispatch(ctx, c.Kind(), metricID, cfg, map[string]registry.MetricHandler{
		MetricNowPlaying: c.fetchNowPlaying,
		MetricLibraries:  c.fetchLibraries,
	})
}

func (c *Connector) fetchNowPlaying(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.PlexConfig)
	client := NewClient(typed.BaseURL(), typed.Token, c.Timeout)
	items, err := client.NowPlaying(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	return items, nil
}

func (c *Connector) fetchLibraries(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.PlexConfig)
	client := NewClient(typed.BaseURL(), typed.Token, c.Timeout)
	libraries, err := client.Libraries(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	return libraries, nil
}

func (c *Connector) AvailableMetrics() []registry.MetricInfo {
	return []registry.MetricInfo{
		{
			ID:          MetricNowPlaying,
			DisplayName: "Now Playing",
			Description: "Active playback sessions with user and progress.",
			WidgetTypes: []string{"list", "card"},
		},
		{
			ID:          MetricLibraries,
			DisplayName: "Libraries",
			Description: "Library sections on the server.",
			WidgetTypes: []string{"list", "stat"},
		},
	}
}

func (c *Connector) APICapabilities() []registry.APICapability {
	return []registry.APICapability{
		{Name: "server-info", Method: "GET", Path: "/", Description: "Server identity and version", Implemented: true},
		{Name: "sessions", Method: "GET", Path: "/status/sessions", Description: "Active playback sessions", Implemented: true},
		{Name: "libraries", Method: "GET", Path: "/library/sections", Description: "Library sections", Implemented: true},
		{Name: "pin-request", Method: "POST", Path: "https://plex.tv/api/v2/pins", Description: "Request an account linking code", Implemented: true},
		{Name: "pin-check", Method: "GET", Path: "https://plex.tv/api/v2/pins/{id}", Description: "Poll a linking code for approval", Implemented: true},
		{Name: "recently-added", Method: "GET", Path: "/library/recentlyAdded", Description: "Recently added media", Implemented: false},
	}
}

func (c *Connector) typedConfig(cfg any) (configstore.PlexConfig, error) {
	typed, ok := cfg.(configstore.PlexConfig)
	if !ok {
		return configstore.PlexConfig{}, fmt.Errorf("unexpected config type %T", cfg)
	}
	return typed, nil
}
