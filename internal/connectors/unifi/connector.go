package unifi

import (
	"context"
	"fmt"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/connectors/session"
)

const (
	MetricClients = "clients"
	MetricHealth  = "health"
)

// Connector implements the connector contract for a UniFi controller.
type Connector struct {
	Timeout  time.Duration
	Sessions session.Store
}

func New(sessions session.Store, timeout time.Duration) *Connector {
	return &Connector{Timeout: timeout, Sessions: sessions}
}

func (c *Connector) Kind() string        { return configstore.KindUniFi }
func (c *Connector) DisplayName() string { return "UniFi Network" }

func (c *Connector) DecodeConfig(raw []byte) (any, error) {
	cfg, err := configstore.DecodeUniFiConfig(raw)
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

// TestConnection always performs a fresh login: a cached session would mask
// a credential that has since been rotated.
func (c *Connector) TestConnection(ctx context.Context, raw []byte) registry.TestResult {
	cfg, err := configstore.DecodeUniFiConfig(raw)
	if err != nil {
		return registry.FailTest(err, "")
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return registry.FailTest(registry.ValidationErr(err), "")
	}

	client := NewClient(cfg, c.Sessions, c.Timeout)
	client.Logout()
	if err := client.Login(ctx); err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}
	health, err := client.Health(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}

	wanStatus := registry.UnknownName
	for _, sub := range health {
		if sub.Name == "wan" {
			wanStatus = sub.Status
		}
	}
	return registry.TestResult{
		Success: true,
		Message: fmt.Sprintf("Connected to UniFi controller at %s", cfg.Endpoint()),
		Details: map[string]any{
			"site":       cfg.Site,
			"subsystems": len(health),
			"wan_status": wanStatus,
		},
	}
}

func (c *Connector) FetchMetric(ctx context.Context, raw []byte, metricID string) (any, error) {
	cfg, err := configstore.DecodeUniFiConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, registry.ValidationErr(err)
	}

	return registry.Dispatch(ctx, c.Kind(), metricID, cfg, map[string]registry.MetricHandler{
		MetricClients: c.fetchClients,
		MetricHealth:  c.fetchHealth,
	})
}

func (c *Connector) fetchClients(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.UniFiConfig)
	client := NewClient(typed, c.Sessions, c.Timeout)
	summary, err := client.ListClients(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	return summary, nil
}

func (c *Connector) fetchHealth(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.UniFiConfig)
	client := NewClient(typed, c.Sessions, c.Timeout)
	health, err := client.Health(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	return health, nil
}

func (c *Connector) AvailableMetrics() []registry.MetricInfo {
	return []registry.MetricInfo{
		{
			ID:          MetricClients,
			DisplayName: "Connected Clients",
			Description: "Active clients with wired/wireless breakdown.",
			WidgetTypes: []string{"stat", "table"},
		},
		{
			ID:          MetricHealth,
			DisplayName: "Network Health",
			Description: "Per-subsystem health status for the site.",
			WidgetTypes: []string{"stat", "list"},
		},
	}
}

func (c *Connector) APICapabilities() []registry.APICapability {
	return []registry.APICapability{
		{Name: "login", Method: "POST", Path: "/api/auth/login", Description: "Session login with cookies and CSRF token", Implemented: true},
		{Name: "clients", Method: "GET", Path: "/proxy/network/api/s/{site}/stat/sta", Description: "Active client list", Implemented: true},
		{Name: "health", Method: "GET", Path: "/proxy/network/api/s/{site}/stat/health", Description: "Subsystem health rollup", Implemented: true},
		{Name: "devices", Method: "GET", Path: "/proxy/network/api/s/{site}/stat/device", Description: "Adopted device inventory", Implemented: false},
		{Name: "events", Method: "GET", Path: "/proxy/network/api/s/{site}/stat/event", Description: "Controller event log", Implemented: false},
	}
}

func (c *Connector) typedConfig(cfg any) (configstore.UniFiConfig, error) {
	typed, ok := cfg.(configstore.UniFiConfig)
	if !ok {
		return configstore.UniFiConfig{}, fmt.Errorf("unexpected config type %T", cfg)
	}
	return typed, nil
}
