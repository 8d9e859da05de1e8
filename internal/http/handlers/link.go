package handlers

import (
	"context"
	"net/http"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/metrics"
	"github.com/hubboard/hubboard/internal/pinflow"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/labstack/echo/v5"
)

// HandleStartLink begins a Plex account-link flow and returns its first
// snapshot. The client polls the show endpoint for the code and countdown.
func (h *Handlers) HandleStartLink(c *echo.Context) error {
	if h.Flows == nil || h.LinkVendor == nil {
		return notFound(c, "account linking is not configured")
	}
	// The flow must outlive this request; it is bounded by its own code
	// expiry, not by the request context.
	flow := h.Flows.Start(context.Background(), h.LinkVendor)
	metrics.LinkFlowsTotal.WithLabelValues(configstore.KindPlex, "started").Inc()
	return c.JSON(http.StatusCreated, flow.Snapshot())
}

func (h *Handlers) HandleShowLink(c *echo.Context) error {
	flow, ok := h.Flows.Get(c.Param("id"))
	if !ok {
		return notFound(c, "unknown link flow")
	}
	return c.JSON(http.StatusOK, flow.Snapshot())
}

func (h *Handlers) HandleRetryLink(c *echo.Context) error {
	flow, ok := h.Flows.Get(c.Param("id"))
	if !ok {
		return notFound(c, "unknown link flow")
	}
	if !flow.Retry(context.Background()) {
		return badRequest(c, "flow is not in a retryable state")
	}
	return c.JSON(http.StatusOK, flow.Snapshot())
}

// HandleCompleteLink is the user's "I've entered it" action. It runs one
// direct exchange with the vendor: a grant writes the token into the Plex
// connector config and retires the flow; a pending or failed exchange
// returns the flow snapshot so the client can keep showing it.
func (h *Handlers) HandleCompleteLink(c *echo.Context) error {
	ctx := c.Request().Context()
	snap, token, ok := h.Flows.Complete(ctx, c.Param("id"))
	if !ok {
		return notFound(c, "unknown link flow")
	}
	if snap.State != pinflow.StateSuccess {
		return c.JSON(http.StatusOK, snap)
	}

	row, _, err := h.Settings.Get(ctx, configstore.KindPlex)
	if err != nil {
		return internalError(c, err)
	}
	current, err := configstore.DecodePlexConfig(row.Config)
	if err != nil {
		return internalError(c, err)
	}
	current.Token = token
	merged, err := configstore.EncodeConfig(current.Normalized())
	if err != nil {
		return internalError(c, err)
	}
	if err := h.Settings.Upsert(ctx, store.ConnectorConfig{
		Kind:    configstore.KindPlex,
		Config:  merged,
		Enabled: row.Enabled,
	}); err != nil {
		return internalError(c, err)
	}

	metrics.LinkFlowsTotal.WithLabelValues(configstore.KindPlex, "completed").Inc()
	masked, err := maskedConfig(configstore.KindPlex, merged)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, masked)
}

func (h *Handlers) HandleCancelLink(c *echo.Context) error {
	h.Flows.Dispose(c.Param("id"))
	metrics.LinkFlowsTotal.WithLabelValues(configstore.KindPlex, "cancelled").Inc()
	return c.NoContent(http.StatusNoContent)
}
