package registry

import (
	"context"
	"fmt"
	"strings"
)

// ConnectorRegistry is the central registry for all connectors. Connectors
// are compiled in and registered once at startup; the registry is read-only
// afterwards.
type ConnectorRegistry struct {
	connectors map[string]Connector
	order      []string // Display order
}

// NewRegistry creates a new connector registry.
func NewRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{
		connectors: make(map[string]Connector),
		order:      make([]string, 0),
	}
}

// Register adds a connector to the registry.
func (r *ConnectorRegistry) Register(conn Connector) error {
	kind := strings.ToLower(strings.TrimSpace(conn.Kind()))
	if kind == "" {
		return fmt.Errorf("connector kind cannot be empty")
	}
	if _, exists := r.connectors[kind]; exists {
		return fmt.Errorf("connector kind %q already registered", kind)
	}
	r.connectors[kind] = conn
	r.order = append(r.order, kind)
	return nil
}

// Get retrieves a connector by kind.
func (r *ConnectorRegistry) Get(kind string) (Connector, bool) {
	conn, ok := r.connectors[strings.ToLower(strings.TrimSpace(kind))]
	return conn, ok
}

// All returns all registered connectors in display order.
func (r *ConnectorRegistry) All() []Connector {
	conns := make([]Connector, 0, len(r.order))
	for _, kind := range r.order {
		conns = append(conns, r.connectors[kind])
	}
	return conns
}

// Dispatch resolves a metric id against a handler table. Unknown ids fail
// with an unsupported-metric error; connectors build their FetchMetric on
// top of this so open-ended string branching never spreads through them.
func Dispatch(ctx context.Context, kind, metricID string, cfg any, handlers map[string]MetricHandler) (any, error) {
	metricID = strings.ToLower(strings.TrimSpace(metricID))
	handler, ok := handlers[metricID]
	if !ok {
		return nil, UnsupportedMetricError(kind, metricID)
	}
	return handler(ctx, cfg)
}
