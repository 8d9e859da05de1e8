package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/metrics"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/labstack/echo/v5"
)

const maxConfigBodySize = 64 << 10 // 64 KiB

type connectorSummary struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
	Configured  bool   `json:"configured"`
	Source      string `json:"source,omitempty"`
}

type connectorDetail struct {
	connectorSummary
	Config       any                      `json:"config"`
	Metrics      []registry.MetricInfo    `json:"metrics"`
	Capabilities []registry.APICapability `json:"capabilities"`
}

// HandleListConnectors returns every registered connector with its stored
// state. Connectors without a settings row appear as unconfigured.
func (h *Handlers) HandleListConnectors(c *echo.Context) error {
	ctx := c.Request().Context()
	out := make([]connectorSummary, 0)
	for _, connector := range h.Registry.All() {
		row, _, err := h.Settings.Get(ctx, connector.Kind())
		if err != nil {
			return internalError(c, err)
		}
		out = append(out, h.summarize(connector, row))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) summarize(connector registry.Connector, row store.ConnectorConfig) connectorSummary {
	summary := connectorSummary{
		Kind:        connector.Kind(),
		DisplayName: connector.DisplayName(),
		Enabled:     row.Enabled,
	}
	if cfg, err := connector.DecodeConfig(row.Config); err == nil {
		summary.Configured = connector.IsConfigured(cfg)
		summary.Source = connector.SourceName(cfg)
	}
	return summary
}

func (h *Handlers) HandleShowConnector(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	row, _, err := h.Settings.Get(c.Request().Context(), connector.Kind())
	if err != nil {
		return internalError(c, err)
	}
	masked, err := maskedConfig(connector.Kind(), row.Config)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, connectorDetail{
		connectorSummary: h.summarize(connector, row),
		Config:           masked,
		Metrics:          connector.AvailableMetrics(),
		Capabilities:     connector.APICapabilities(),
	})
}

// HandleSaveConnectorConfig merges the submitted config into the stored
// one. Validation is deferred until the connector is enabled or tested, so
// a half-filled form can be saved.
func (h *Handlers) HandleSaveConnectorConfig(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	ctx := c.Request().Context()

	update, err := io.ReadAll(io.LimitReader(c.Request().Body, maxConfigBodySize))
	if err != nil {
		return badRequest(c, "could not read request body")
	}

	row, _, err := h.Settings.Get(ctx, connector.Kind())
	if err != nil {
		return internalError(c, err)
	}
	merged, err := mergeConfigPayload(connector.Kind(), row.Config, update)
	if err != nil {
		return badRequest(c, "config payload is not valid JSON")
	}
	if row.Enabled {
		cfg, err := connector.DecodeConfig(merged)
		if err != nil {
			return badRequest(c, "config payload is not valid JSON")
		}
		if err := connector.ValidateConfig(cfg); err != nil {
			return writeError(c, registry.ValidationErr(err))
		}
	}
	if err := h.Settings.Upsert(ctx, store.ConnectorConfig{
		Kind:    connector.Kind(),
		Config:  merged,
		Enabled: row.Enabled,
	}); err != nil {
		return internalError(c, err)
	}

	masked, err := maskedConfig(connector.Kind(), merged)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, masked)
}

// HandleSetConnectorEnabled toggles a connector. Enabling requires a config
// that passes validation; disabling always succeeds.
func (h *Handlers) HandleSetConnectorEnabled(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	ctx := c.Request().Context()

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return badRequest(c, "request body must be {\"enabled\": bool}")
	}

	if body.Enabled {
		row, _, err := h.Settings.Get(ctx, connector.Kind())
		if err != nil {
			return internalError(c, err)
		}
		raw := row.Config
		if len(raw) == 0 {
			raw = []byte("{}")
		}
		cfg, err := connector.DecodeConfig(raw)
		if err != nil {
			return badRequest(c, "stored config is not valid JSON")
		}
		if err := connector.ValidateConfig(cfg); err != nil {
			return writeError(c, registry.ValidationErr(err))
		}
	}

	// The flip only touches the enabled column; the stored config stays
	// exactly as the last save left it.
	if _, err := h.Settings.SetEnabled(ctx, connector.Kind(), body.Enabled); err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

// HandleDeleteConnectorConfig removes the stored row, secrets included.
// The connector stays registered and shows up as unconfigured afterwards.
func (h *Handlers) HandleDeleteConnectorConfig(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	if err := h.Settings.Delete(c.Request().Context(), connector.Kind()); err != nil {
		return internalError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleTestConnector runs a connection test with the stored config. The
// response is always 200; the outcome lives in the body.
func (h *Handlers) HandleTestConnector(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	row, _, err := h.Settings.Get(c.Request().Context(), connector.Kind())
	if err != nil {
		return internalError(c, err)
	}
	result := connector.TestConnection(c.Request().Context(), row.Config)
	return c.JSON(http.StatusOK, result)
}

func (h *Handlers) HandleConnectorMetrics(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	return c.JSON(http.StatusOK, connector.AvailableMetrics())
}

func (h *Handlers) HandleConnectorCapabilities(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	return c.JSON(http.StatusOK, connector.APICapabilities())
}

// HandleConnectorData fetches one metric for a widget. Disabled connectors
// do not serve data.
func (h *Handlers) HandleConnectorData(c *echo.Context) error {
	connector, ok := h.Registry.Get(c.Param("kind"))
	if !ok {
		return notFound(c, "unknown connector kind")
	}
	metricID := strings.TrimSpace(c.Param("metric"))
	ctx := c.Request().Context()

	row, found, err := h.Settings.Get(ctx, connector.Kind())
	if err != nil {
		return internalError(c, err)
	}
	if !found || !row.Enabled {
		return writeError(c, registry.ValidationError("an enabled connector configuration"))
	}

	start := time.Now()
	data, err := connector.FetchMetric(ctx, row.Config, metricID)
	metrics.FetchDuration.WithLabelValues(connector.Kind(), metricID).Observe(time.Since(start).Seconds())
	if err != nil {
		// Connector fetches classify their own failures; Classify here only
		// passes them through (or catches a decode error).
		classified := registry.Classify(err, "")
		metrics.FetchesTotal.WithLabelValues(connector.Kind(), metricID, "error").Inc()
		metrics.FetchFailuresTotal.WithLabelValues(connector.Kind(), string(classified.Kind)).Inc()
		return writeError(c, classified)
	}
	metrics.FetchesTotal.WithLabelValues(connector.Kind(), metricID, "success").Inc()
	return c.JSON(http.StatusOK, map[string]any{
		"kind":      connector.Kind(),
		"metric_id": metricID,
		"data":      data,
	})
}
