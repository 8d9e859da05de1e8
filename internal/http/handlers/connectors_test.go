package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/overseerr"
	"github.com/hubboard/hubboard/internal/connectors/plex"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/labstack/echo/v5"
)

func newTestContext(method, target string, body io.Reader) (*echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

type memSettings struct {
	mu   sync.Mutex
	rows map[string]store.ConnectorConfig
}

func newMemSettings() *memSettings {
	return &memSettings{rows: make(map[string]store.ConnectorConfig)}
}

func (m *memSettings) Get(ctx context.Context, kind string) (store.ConnectorConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[kind]
	return row, ok, nil
}

func (m *memSettings) List(ctx context.Context) ([]store.ConnectorConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ConnectorConfig, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memSettings) Upsert(ctx context.Context, cfg store.ConnectorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.UpdatedAt = time.Now()
	m.rows[cfg.Kind] = cfg
	return nil
}

func (m *memSettings) SetEnabled(ctx context.Context, kind string, enabled bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[kind]
	if !ok {
		return false, nil
	}
	row.Enabled = enabled
	m.rows[kind] = row
	return true, nil
}

func (m *memSettings) Delete(ctx context.Context, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, kind)
	return nil
}

func newTestHandlers(t *testing.T) (*Handlers, *memSettings) {
	t.Helper()
	reg := registry.NewRegistry()
	if err := reg.Register(overseerr.New(0)); err != nil {
		t.Fatalf("Register(overseerr) error = %v", err)
	}
	if err := reg.Register(plex.New(0)); err != nil {
		t.Fatalf("Register(plex) error = %v", err)
	}
	settings := newMemSettings()
	return &Handlers{Settings: settings, Registry: reg}, settings
}

func TestHandleListConnectors(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:    configstore.KindOverseerr,
		Config:  []byte(`{"host":"media.local","api_key":"k"}`),
		Enabled: true,
	})

	c, rec := newTestContext(http.MethodGet, "/api/connectors", nil)
	if err := h.HandleListConnectors(c); err != nil {
		t.Fatalf("HandleListConnectors() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var out []connectorSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("connectors = %+v", out)
	}
	if out[0].Kind != configstore.KindOverseerr || !out[0].Enabled || !out[0].Configured {
		t.Fatalf("overseerr summary = %+v", out[0])
	}
	if out[0].Source != "media.local:5055" {
		t.Fatalf("Source = %q", out[0].Source)
	}
	if out[1].Kind != configstore.KindPlex || out[1].Configured {
		t.Fatalf("plex summary = %+v", out[1])
	}
}

func TestHandleShowConnectorMasksSecrets(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:   configstore.KindOverseerr,
		Config: []byte(`{"host":"media.local","api_key":"supersecret99"}`),
	})

	c, rec := newTestContext(http.MethodGet, "/api/connectors/overseerr", nil)
	c.SetPathValues(echo.PathValues{{Name: "kind", Value: "overseerr"}})
	if err := h.HandleShowConnector(c); err != nil {
		t.Fatalf("HandleShowConnector() error = %v", err)
	}

	body := rec.Body.String()
	if strings.Contains(body, "supersecret99") {
		t.Fatalf("secret leaked: %s", body)
	}
	if !strings.Contains(body, `"****et99"`) {
		t.Fatalf("masked key missing: %s", body)
	}
	if !strings.Contains(body, `"metrics"`) || !strings.Contains(body, `"capabilities"`) {
		t.Fatalf("detail missing sections: %s", body)
	}
}

func TestHandleShowConnectorUnknownKind(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t)
	c, rec := newTestContext(http.MethodGet, "/api/connectors/nope", nil)
	c.SetPathValues(echo.PathValues{{Name: "kind", Value: "nope"}})
	if err := h.HandleShowConnector(c); err != nil {
		t.Fatalf("HandleShowConnector() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSaveConnectorConfigKeepsSecret(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:   configstore.KindOverseerr,
		Config: []byte(`{"host":"media.local","api_key":"supersecret99"}`),
	})

	// Update with a blank api_key: the stored secret must survive.
	c, rec := newTestContext(http.MethodPut, "/api/connectors/overseerr/config",
		strings.NewReader(`{"host":"new.local","port":5056,"api_key":""}`))
	c.SetPathValues(echo.PathValues{{Name: "kind", Value: "overseerr"}})
	if err := h.HandleSaveConnectorConfig(c); err != nil {
		t.Fatalf("HandleSaveConnectorConfig() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	row, ok, _ := settings.Get(context.Background(), configstore.KindOverseerr)
	if !ok {
		t.Fatal("row missing after save")
	}
	saved, err := configstore.DecodeOverseerrConfig(row.Config)
	if err != nil {
		t.Fatalf("decode saved config: %v", err)
	}
	if saved.Host != "new.local" || saved.Port != 5056 {
		t.Fatalf("saved = %+v", saved)
	}
	if saved.APIKey != "supersecret99" {
		t.Fatalf("APIKey = %q, want stored secret kept", saved.APIKey)
	}
}

func TestHandleSetConnectorEnabledValidates(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:   configstore.KindOverseerr,
		Config: []byte(`{"host":"media.local"}`),
	})

	c, rec := newTestContext(http.MethodPost, "/api/connectors/overseerr/enabled",
		strings.NewReader(`{"enabled":true}`))
	c.SetPathValues(echo.PathValues{{Name: "kind", Value: "overseerr"}})
	if err := h.HandleSetConnectorEnabled(c); err != nil {
		t.Fatalf("HandleSetConnectorEnabled() error = %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "API key is required") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	row, _, _ := settings.Get(context.Background(), configstore.KindOverseerr)
	if row.Enabled {
		t.Fatal("connector must stay disabled when validation fails")
	}
}

func TestHandleSetConnectorEnabledFlipsOnlyTheFlag(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:    configstore.KindOverseerr,
		Config:  []byte(`{"host":"media.local","api_key":"supersecret99"}`),
		Enabled: true,
	})

	c, rec := newTestContext(http.MethodPost, "/api/connectors/overseerr/enabled",
		strings.NewReader(`{"enabled":false}`))
	c.SetPathValues(echo.PathValues{{Name: "kind", Value: "overseerr"}})
	if err := h.HandleSetConnectorEnabled(c); err != nil {
		t.Fatalf("HandleSetConnectorEnabled() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	row, ok, _ := settings.Get(context.Background(), configstore.KindOverseerr)
	if !ok {
		t.Fatal("row missing after disable")
	}
	if row.Enabled {
		t.Fatal("connector should be disabled")
	}
	// Disabling must not rewrite the stored config.
	if string(row.Config) != `{"host":"media.local","api_key":"supersecret99"}` {
		t.Fatalf("config changed on disable: %s", row.Config)
	}
}

func TestHandleDeleteConnectorConfig(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:    configstore.KindOverseerr,
		Config:  []byte(`{"host":"media.local","api_key":"supersecret99"}`),
		Enabled: true,
	})

	c, rec := newTestContext(http.MethodDelete, "/api/connectors/overseerr/config", nil)
	c.SetPathValues(echo.PathValues{{Name: "kind", Value: "overseerr"}})
	if err := h.HandleDeleteConnectorConfig(c); err != nil {
		t.Fatalf("HandleDeleteConnectorConfig() error = %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, ok, _ := settings.Get(context.Background(), configstore.KindOverseerr); ok {
		t.Fatal("row should be gone after delete")
	}

	c, rec = newTestContext(http.MethodDelete, "/api/connectors/nope/config", nil)
	c.SetPathValues(echo.PathValues{{Name: "kind", Value: "nope"}})
	if err := h.HandleDeleteConnectorConfig(c); err != nil {
		t.Fatalf("HandleDeleteConnectorConfig() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleConnectorDataRequiresEnabled(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:    configstore.KindOverseerr,
		Config:  []byte(`{"host":"media.local","api_key":"k"}`),
		Enabled: false,
	})

	c, rec := newTestContext(http.MethodGet, "/api/connectors/overseerr/data/requests", nil)
	c.SetPathValues(echo.PathValues{
		{Name: "kind", Value: "overseerr"},
		{Name: "metric", Value: "requests"},
	})
	if err := h.HandleConnectorData(c); err != nil {
		t.Fatalf("HandleConnectorData() error = %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestHandleConnectorDataUnknownMetric(t *testing.T) {
	t.Parallel()

	h, settings := newTestHandlers(t)
	_ = settings.Upsert(context.Background(), store.ConnectorConfig{
		Kind:    configstore.KindOverseerr,
		Config:  []byte(`{"host":"media.local","api_key":"k"}`),
		Enabled: true,
	})

	c, rec := newTestContext(http.MethodGet, "/api/connectors/overseerr/data/nope", nil)
	c.SetPathValues(echo.PathValues{
		{Name: "kind", Value: "overseerr"},
		{Name: "metric", Value: "nope"},
	})
	if err := h.HandleConnectorData(c); err != nil {
		t.Fatalf("HandleConnectorData() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
