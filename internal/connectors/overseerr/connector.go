// Package overseerr implements the media request manager connector.
package overseerr

import (
	"context"
	"fmt"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"golang.org/x/sync/errgroup"
)

const (
	MetricRequests      = "requests"
	MetricRequestCounts = "request-counts"

	titleResolveWorkers = 4
)

// Connector implements the connector contract for Overseerr.
type Connector struct {
	Timeout time.Duration
}

func New(timeout time.Duration) *Connector {
	return &Connector{Timeout: timeout}
}

func (c *Connector) Kind() string        { return configstore.KindOverseerr }
func (c *Connector) DisplayName() string { return "Overseerr" }

func (c *Connector) DecodeConfig(raw []byte) (any, error) {
	cfg, err := configstore.DecodeOverseerrConfig(raw)
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
	cfg, err := configstore.DecodeOverseerrConfig(raw)
	if err != nil {
		return registry.FailTest(err, "")
	}
	cfg = cfg.Normalized()
	if cfg.Host == "" {
		return registry.FailTest(registry.ValidationError("Host"), "")
	}
	if cfg.APIKey == "" {
		return registry.FailTest(registry.ValidationError("API key"), "")
	}

	client := NewClient(cfg.BaseURL(), cfg.APIKey, c.Timeout)
	status, err := client.GetStatus(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}
	counts, err := client.GetRequestCounts(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}

	return registry.TestResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Overseerr v%s", status.Version),
		Details: map[string]any{
			"version":          status.Version,
			"commit_tag":       status.CommitTag,
			"update_available": status.UpdateAvailable,
			"total_requests":   counts.Total,
			"pending_requests": counts.Pending,
		},
	}
}

func (c *Connector) FetchMetric(ctx context.Context, raw []byte, metricID string) (any, error) {
	cfg, err := configstore.DecodeOverseerrConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, registry.ValidationErr(err)
	}

	return registry.Dispatch(ctx, c.Kind(), metricID, cfg, map[string]registry.MetricHandler{
		MetricRequests:      c.fetchRequests,
		MetricRequestCounts: c.fetchRequestCounts,
	})
}

func (c *Connector) fetchRequests(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.OverseerrConfig)
	client := NewClient(typed.BaseURL(), typed.APIKey, c.Timeout)

	requests, err := client.ListRequests(ctx, 20)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}

	// Resolve titles in parallel; a failed lookup defaults the title rather
	// than failing the whole list.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(titleResolveWorkers)
	for i := range requests {
		g.Go(func() error {
			title, err := client.ResolveTitle(gctx, requests[i].MediaType, requests[i].TmdbID)
			if err != nil || title == "" {
				title = registry.UnknownName
			}
			requests[i].Title = title
			return nil
		})
	}
	_ = g.Wait()

	return requests, nil
}

func (c *Connector) fetchRequestCounts(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.OverseerrConfig)
	client := NewClient(typed.BaseURL(), typed.APIKey, c.Timeout)
	counts, err := client.GetRequestCounts(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	return counts, nil
}

func (c *Connector) AvailableMetrics() []registry.MetricInfo {
	return []registry.MetricInfo{
		{
			ID:          MetricRequests,
			DisplayName: "Recent Requests",
			Description: "Most recent media requests with resolved titles.",
			WidgetTypes: []string{"list", "table"},
		},
		{
			ID:          MetricRequestCounts,
			DisplayName: "Request Counts",
			Description: "Request totals broken down by status.",
			WidgetTypes: []string{"stat", "chart"},
		},
	}
}

func (c *Connector) APICapabilities() []registry.APICapability {
	return []registry.APICapability{
		{Name: "status", Method: "GET", Path: "/api/v1/status", Description: "Server version and update state", Implemented: true},
		{Name: "request-count", Method: "GET", Path: "/api/v1/request/count", Description: "Request totals by status", Implemented: true},
		{Name: "request-list", Method: "GET", Path: "/api/v1/request", Description: "Paginated request list", Implemented: true},
		{Name: "movie-details", Method: "GET", Path: "/api/v1/movie/{tmdbId}", Description: "Movie metadata for title resolution", Implemented: true},
		{Name: "tv-details", Method: "GET", Path: "/api/v1/tv/{tmdbId}", Description: "Series metadata for title resolution", Implemented: true},
		{Name: "approve-request", Method: "POST", Path: "/api/v1/request/{id}/approve", Description: "Approve a pending request", Implemented: false},
		{Name: "decline-request", Method: "POST", Path: "/api/v1/request/{id}/decline", Description: "Decline a pending request", Implemented: false},
		{Name: "search", Method: "GET", Path: "/api/v1/search", Description: "Media search", Implemented: false},
	}
}

func (c *Connector) typedConfig(cfg any) (configstore.OverseerrConfig, error) {
	typed, ok := cfg.(configstore.OverseerrConfig)
	if !ok {
		return configstore.OverseerrConfig{}, fmt.Errorf("unexpected config type %T", cfg)
	}
	return typed, nil
}
