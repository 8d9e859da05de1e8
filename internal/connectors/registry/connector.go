package registry

import "context"

// Connector is the uniform contract every vendor adapter implements.
// TestConnection and FetchMetric are the only operations with side effects;
// AvailableMetrics and APICapabilities are static descriptors.
type Connector interface {
	// Identity
	Kind() string        // e.g., "overseerr", "unifi"
	DisplayName() string // e.g., "Overseerr", "UniFi Network"

	// Configuration
	DecodeConfig(raw []byte) (any, error)
	ValidateConfig(cfg any) error
	IsConfigured(cfg any) bool
	SourceName(cfg any) string // e.g., host:port, server-url/sync-id

	// Network operations
	TestConnection(ctx context.Context, raw []byte) TestResult
	FetchMetric(ctx context.Context, raw []byte, metricID string) (any, error)

	// Static descriptors
	AvailableMetrics() []MetricInfo
	APICapabilities() []APICapability
}

// TestResult is the outcome of a connectivity test.
type TestResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// MetricInfo describes one logical metric a connector can serve.
type MetricInfo struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	WidgetTypes []string `json:"widget_types"`
}

// APICapability enumerates one known upstream operation for documentation.
// Never consulted on the hot path.
type APICapability struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Implemented bool   `json:"implemented"`
}

// MetricHandler serves one metric id from a decoded config.
type MetricHandler func(ctx context.Context, cfg any) (any, error)
