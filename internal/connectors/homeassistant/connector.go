package homeassistant

import (
	"context"
	"fmt"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
)

const (
	MetricSnapshot = "snapshot"
	MetricLights   = "lights"
	MetricEnergy   = "energy"
)

// Snapshot is the per-domain rollup rendered by the overview widget.
type Snapshot struct {
	LocationName string `json:"location_name"`
	Version      string `json:"version"`
	Entities     int    `json:"entities"`
	LightsOn     int    `json:"lights_on"`
	LightsTotal  int    `json:"lights_total"`
	Sensors      int    `json:"sensors"`
	Cameras      int    `json:"cameras"`
	Automations  int    `json:"automations"`
}

// EnergySensor is one power or energy sensor feeding the rollup.
type EnergySensor struct {
	EntityID     string  `json:"entity_id"`
	FriendlyName string  `json:"friendly_name"`
	DeviceClass  string  `json:"device_class"`
	Value        float64 `json:"value"`
	Unit         string  `json:"unit,omitempty"`
}

// EnergySummary totals the instantaneous power draw and today's energy
// across every power/energy sensor. Unreadable states count as zero so
// one flaky plug does not sink the rollup.
type EnergySummary struct {
	CurrentPowerW  float64        `json:"current_power_w"`
	TodayEnergyKWh float64        `json:"today_energy_kwh"`
	Sensors        []EnergySensor `json:"sensors"`
}

// Connector implements the connector contract for Home Assistant.
type Connector struct {
	Timeout time.Duration
}

func New(timeout time.Duration) *Connector {
	return &Connector{Timeout: timeout}
}

func (c *Connector) Kind() string        { return configstore.KindHomeAssistant }
func (c *Connector) DisplayName() string { return "Home Assistant" }

func (c *Connector) DecodeConfig(raw []byte) (any, error) {
	cfg, err := configstore.DecodeHomeAssistantConfig(raw)
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
	cfg, err := configstore.DecodeHomeAssistantConfig(raw)
	if err != nil {
		return registry.FailTest(err, "")
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return registry.FailTest(registry.ValidationErr(err), "")
	}

	client := NewClient(cfg.BaseURL(), cfg.Token, c.Timeout)
	info, err := client.GetConfig(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}

	return registry.TestResult{
		Success: true,
		Message: fmt.Sprintf("Connected to Home Assistant %s", info.Version),
		Details: map[string]any{
			"location_name": info.LocationName,
			"version":       info.Version,
			"state":         info.State,
		},
	}
}

func (c *Connector) FetchMetric(ctx context.Context, raw []byte, metricID string) (any, error) {
	cfg, err := configstore.DecodeHomeAssistantConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, registry.ValidationErr(err)
	}

	return registry.Dispatch(ctx, c.Kind(), metricID, cfg, map[string]registry.MetricHandler{
		MetricSnapshot: c.fetchSnapshot,
		MetricLights:   c.fetchLights,
		MetricEnergy:   c.fetchEnergy,
	})
}

func (c *Connector) fetchSnapshot(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.HomeAssistantConfig)
	client := NewClient(typed.BaseURL(), typed.Token, c.Timeout)

	info, err := client.GetConfig(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	entities, err := client.ListStates(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}

	snapshot := Snapshot{
		LocationName: info.LocationName,
		Version:      info.Version,
		Entities:     len(entities),
	}
	for _, entity := range entities {
		switch entity.Domain {
		case "light":
			snapshot.LightsTotal++
			if entity.State == "on" {
				snapshot.LightsOn++
			}
		case "sensor", "binary_sensor":
			snapshot.Sensors++
		case "camera":
			snapshot.Cameras++
		case "automation":
			snapshot.Automations++
		}
	}
	return snapshot, nil
}

func (c *Connector) fetchLights(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.HomeAssistantConfig)
	client := NewClient(typed.BaseURL(), typed.Token, c.Timeout)

	entities, err := client.ListStates(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	lights := make([]Entity, 0)
	for _, entity := range entities {
		if entity.Domain == "light" {
			lights = append(lights, entity)
		}
	}
	return lights, nil
}

func (c *Connector) fetchEnergy(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.HomeAssistantConfig)
	client := NewClient(typed.BaseURL(), typed.Token, c.Timeout)

	entities, err := client.ListStates(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}

	summary := EnergySummary{Sensors: make([]EnergySensor, 0)}
	for _, entity := range entities {
		if entity.Domain != "sensor" {
			continue
		}
		if entity.DeviceClass != "power" && entity.DeviceClass != "energy" {
			continue
		}
		// Non-numeric states like "unavailable" coerce to zero.
		value := registry.CoerceFloat(entity.State)
		switch entity.DeviceClass {
		case "power":
			normalized := value
			if entity.Unit == "kW" {
				normalized *= 1000
			}
			summary.CurrentPowerW += normalized
		case "energy":
			normalized := value
			if entity.Unit == "Wh" {
				normalized /= 1000
			}
			summary.TodayEnergyKWh += normalized
		}
		summary.Sensors = append(summary.Sensors, EnergySensor{
			EntityID:     entity.EntityID,
			FriendlyName: entity.FriendlyName,
			DeviceClass:  entity.DeviceClass,
			Value:        value,
			Unit:         entity.Unit,
		})
	}
	return summary, nil
}

func (c *Connector) AvailableMetrics() []registry.MetricInfo {
	return []registry.MetricInfo{
		{
			ID:          MetricSnapshot,
			DisplayName: "Home Snapshot",
			Description: "Entity counts rolled up by domain.",
			WidgetTypes: []string{"stat", "chart"},
		},
		{
			ID:          MetricLights,
			DisplayName: "Lights",
			Description: "Light entities with their current state.",
			WidgetTypes: []string{"list", "table"},
		},
		{
			ID:          MetricEnergy,
			DisplayName: "Energy",
			Description: "Power draw and today's energy across power and energy sensors.",
			WidgetTypes: []string{"stat", "chart"},
		},
	}
}

func (c *Connector) APICapabilities() []registry.APICapability {
	return []registry.APICapability{
		{Name: "config", Method: "GET", Path: "/api/config", Description: "Instance metadata and version", Implemented: true},
		{Name: "states", Method: "GET", Path: "/api/states", Description: "All entity states", Implemented: true},
		{Name: "state", Method: "GET", Path: "/api/states/{entity_id}", Description: "Single entity state", Implemented: false},
		{Name: "call-service", Method: "POST", Path: "/api/services/{domain}/{service}", Description: "Invoke a service such as light.turn_on", Implemented: false},
		{Name: "history", Method: "GET", Path: "/api/history/period", Description: "State history", Implemented: false},
	}
}

func (c *Connector) typedConfig(cfg any) (configstore.HomeAssistantConfig, error) {
	typed, ok := cfg.(configstore.HomeAssistantConfig)
	if !ok {
		return configstore.HomeAssistantConfig{}, fmt.Errorf("unexpected config type %T", cfg)
	}
	return typed, nil
}
