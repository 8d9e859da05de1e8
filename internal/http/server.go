package httpapp

import (
	"net/http"

	"github.com/hubboard/hubboard/internal/config"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/http/handlers"
	"github.com/hubboard/hubboard/internal/pinflow"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/labstack/echo/v5"
)

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h *handlers.Handlers
	e *echo.Echo
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(cfg config.Config, settings store.Settings, reg *registry.ConnectorRegistry, flows *pinflow.Manager, linkVendor pinflow.Vendor) (*EchoServer, error) {
	h := &handlers.Handlers{
		Cfg:        cfg,
		Settings:   settings,
		Registry:   reg,
		Flows:      flows,
		LinkVendor: linkVendor,
	}
	es := &EchoServer{h: h, e: echo.New()}
	es.registerRoutes()
	return es, nil
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("/api")
	api.GET("/connectors", es.h.HandleListConnectors)
	api.GET("/connectors/:kind", es.h.HandleShowConnector)
	api.PUT("/connectors/:kind/config", es.h.HandleSaveConnectorConfig)
	api.DELETE("/connectors/:kind/config", es.h.HandleDeleteConnectorConfig)
	api.POST("/connectors/:kind/enabled", es.h.HandleSetConnectorEnabled)
	api.POST("/connectors/:kind/test", es.h.HandleTestConnector)
	api.GET("/connectors/:kind/metrics", es.h.HandleConnectorMetrics)
	api.GET("/connectors/:kind/capabilities", es.h.HandleConnectorCapabilities)
	api.GET("/connectors/:kind/data/:metric", es.h.HandleConnectorData)

	api.POST("/link/plex", es.h.HandleStartLink)
	api.GET("/link/plex/:id", es.h.HandleShowLink)
	api.POST("/link/plex/:id/retry", es.h.HandleRetryLink)
	api.POST("/link/plex/:id/complete", es.h.HandleCompleteLink)
	api.DELETE("/link/plex/:id", es.h.HandleCancelLink)
}

// Handler exposes the router for an http.Server.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}
