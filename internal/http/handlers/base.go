// Package handlers contains the JSON API handler logic.
package handlers

import (
	"errors"
	"net/http"

	"github.com/hubboard/hubboard/internal/config"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/pinflow"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/labstack/echo/v5"
)

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Cfg        config.Config
	Settings   store.Settings
	Registry   *registry.ConnectorRegistry
	Flows      *pinflow.Manager
	LinkVendor pinflow.Vendor
}

// HandleHealthz returns a simple health check response.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// writeError maps a classified failure onto an HTTP status. Upstream
// problems are 502: the dashboard itself is healthy, the service behind the
// connector is not.
func writeError(c *echo.Context, err error) error {
	var classified *registry.ClassifiedError
	if !errors.As(err, &classified) {
		classified = registry.Classify(err, "")
	}

	status := http.StatusBadGateway
	switch classified.Kind {
	case registry.FailureValidation:
		status = http.StatusUnprocessableEntity
	case registry.FailureUnsupported:
		status = http.StatusNotFound
	}
	return c.JSON(status, errorResponse{Error: apiError{
		Kind:    string(classified.Kind),
		Message: classified.Message,
	}})
}

func notFound(c *echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: apiError{
		Kind:    "not_found",
		Message: message,
	}})
}

func badRequest(c *echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: apiError{
		Kind:    "bad_request",
		Message: message,
	}})
}

func internalError(c *echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: apiError{
		Kind:    "internal",
		Message: err.Error(),
	}})
}
