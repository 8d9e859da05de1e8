package probe

import (
	"context"
	"testing"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/metrics"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubConnector struct {
	kind    string
	succeed bool
	tested  int
}

func (s *stubConnector) Kind() string                         { return s.kind }
func (s *stubConnector) DisplayName() string                  { return s.kind }
func (s *stubConnector) DecodeConfig(raw []byte) (any, error) { return nil, nil }
func (s *stubConnector) ValidateConfig(cfg any) error         { return nil }
func (s *stubConnector) IsConfigured(cfg any) bool            { return true }
func (s *stubConnector) SourceName(cfg any) string            { return s.kind }
func (s *stubConnector) TestConnection(ctx context.Context, raw []byte) registry.TestResult {
	s.tested++
	return registry.TestResult{Success: s.succeed, Message: "probe"}
}
func (s *stubConnector) FetchMetric(ctx context.Context, raw []byte, metricID string) (any, error) {
	return nil, nil
}
func (s *stubConnector) AvailableMetrics() []registry.MetricInfo   { return nil }
func (s *stubConnector) APICapabilities() []registry.APICapability { return nil }

type memSettings struct {
	configs []store.ConnectorConfig
}

func (m *memSettings) Get(ctx context.Context, kind string) (store.ConnectorConfig, bool, error) {
	for _, cfg := range m.configs {
		if cfg.Kind == kind {
			return cfg, true, nil
		}
	}
	return store.ConnectorConfig{}, false, nil
}

func (m *memSettings) List(ctx context.Context) ([]store.ConnectorConfig, error) {
	return m.configs, nil
}

func (m *memSettings) Upsert(ctx context.Context, cfg store.ConnectorConfig) error { return nil }
func (m *memSettings) SetEnabled(ctx context.Context, kind string, enabled bool) (bool, error) {
	return false, nil
}
func (m *memSettings) Delete(ctx context.Context, kind string) error { return nil }

func TestRunOnceSetsGauges(t *testing.T) {
	up := &stubConnector{kind: "probe-up", succeed: true}
	down := &stubConnector{kind: "probe-down"}
	idle := &stubConnector{kind: "probe-idle", succeed: true}

	reg := registry.NewRegistry()
	for _, c := range []*stubConnector{up, down, idle} {
		if err := reg.Register(c); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	settings := &memSettings{configs: []store.ConnectorConfig{
		{Kind: "probe-up", Enabled: true, Config: []byte(`{}`)},
		{Kind: "probe-down", Enabled: true, Config: []byte(`{}`)},
		{Kind: "probe-idle", Enabled: false, Config: []byte(`{}`)},
	}}

	prober := &Prober{Registry: reg, Settings: settings, Interval: time.Minute}
	if err := prober.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.ConnectorUp.WithLabelValues("probe-up")); got != 1 {
		t.Fatalf("connector_up{probe-up} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ConnectorUp.WithLabelValues("probe-down")); got != 0 {
		t.Fatalf("connector_up{probe-down} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.ConnectorUp.WithLabelValues("probe-idle")); got != 0 {
		t.Fatalf("connector_up{probe-idle} = %v, want 0", got)
	}
	if idle.tested != 0 {
		t.Fatal("disabled connector must not be probed")
	}
}
