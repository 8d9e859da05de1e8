// Package homeassistant implements the home automation hub connector.
// Authentication is a long-lived access token sent as a bearer header.
package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/registry"
)

const (
	defaultTimeout   = 15 * time.Second
	maxErrorBodySize = 1 << 20 // 1 MiB
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

type Config struct {
	LocationName string `json:"location_name"`
	Version      string `json:"version"`
	State        string `json:"state"`
}

type Entity struct {
	EntityID     string `json:"entity_id"`
	Domain       string `json:"domain"`
	State        string `json:"state"`
	FriendlyName string `json:"friendly_name"`
	DeviceClass  string `json:"device_class,omitempty"`
	Unit         string `json:"unit,omitempty"`
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:   strings.TrimSpace(token),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// GetConfig fetches /api/config. A response without a version means the
// target is not a Home Assistant instance.
func (c *Client) GetConfig(ctx context.Context) (Config, error) {
	body, err := c.get(ctx, "/api/config")
	if err != nil {
		return Config{}, err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Config{}, &registry.ProtocolError{Detail: "config response is not valid JSON", Err: err}
	}
	version := registry.CoerceString(payload["version"], "")
	if version == "" {
		return Config{}, &registry.ProtocolError{Detail: "config response is missing the version field"}
	}
	return Config{
		LocationName: registry.CoerceName(payload["location_name"]),
		Version:      version,
		State:        registry.CoerceString(payload["state"], registry.UnknownName),
	}, nil
}

// ListStates fetches /api/states and flattens each entity to the fields the
// dashboard renders.
func (c *Client) ListStates(ctx context.Context) ([]Entity, error) {
	body, err := c.get(ctx, "/api/states")
	if err != nil {
		return nil, err
	}
	var payload []map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &registry.ProtocolError{Detail: "states response is not valid JSON", Err: err}
	}

	out := make([]Entity, 0, len(payload))
	for _, raw := range payload {
		entityID := registry.CoerceString(raw["entity_id"], "")
		if entityID == "" {
			continue
		}
		entity := Entity{
			EntityID:     entityID,
			Domain:       domainOf(entityID),
			State:        registry.CoerceString(raw["state"], registry.UnknownName),
			FriendlyName: entityID,
		}
		if attrs, ok := raw["attributes"].(map[string]any); ok {
			entity.FriendlyName = registry.CoerceString(attrs["friendly_name"], entityID)
			entity.DeviceClass = registry.CoerceString(attrs["device_class"], "")
			entity.Unit = registry.CoerceString(attrs["unit_of_measurement"], "")
		}
		out = append(out, entity)
	}
	return out, nil
}

func domainOf(entityID string) string {
	if idx := strings.Index(entityID, "."); idx > 0 {
		return entityID[:idx]
	}
	return registry.UnknownName
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hubboard")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("homeassistant request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &registry.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Endpoint:   endpoint,
			Body:       string(body),
		}
	}
	return body, nil
}
