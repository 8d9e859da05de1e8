// Package plex implements the media server connector plus the plex.tv PIN
// linking client used by the device-auth flow.
package plex

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

	productName = "hubboard"
)

// Client talks to a Plex Media Server with a static X-Plex-Token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

type ServerInfo struct {
	FriendlyName      string `json:"friendly_name"`
	Version           string `json:"version"`
	MachineIdentifier string `json:"machine_identifier"`
}

type NowPlayingItem struct {
	Title       string `json:"title"`
	GrandTitle  string `json:"grand_title"`
	Type        string `json:"type"`
	User        string `json:"user"`
	Player      string `json:"player"`
	State       string `json:"state"`
	ProgressPct int    `json:"progress_pct"`
}

type Library struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
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

// ServerInfo fetches the server root. The machine identifier is mandatory:
// a success response without it is not a Plex server.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	container, err := c.getContainer(ctx, "/")
	if err != nil {
		return ServerInfo{}, err
	}
	id := registry.CoerceString(container["machineIdentifier"], "")
	if id == "" {
		return ServerInfo{}, &registry.ProtocolError{Detail: "server response is missing the machineIdentifier field"}
	}
	return ServerInfo{
		FriendlyName:      registry.CoerceName(container["friendlyName"]),
		Version:           registry.CoerceString(container["version"], registry.UnknownName),
		MachineIdentifier: id,
	}, nil
}

// NowPlaying fetches active playback sessions.
func (c *Client) NowPlaying(ctx context.Context) ([]NowPlayingItem, error) {
	container, err := c.getContainer(ctx, "/status/sessions")
	if err != nil {
		return nil, err
	}

	rows, _ := container["Metadata"].([]any)
	out := make([]NowPlayingItem, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.(map[string]any)
		if !ok {
			continue
		}
		item := NowPlayingItem{
			Title:      registry.CoerceName(raw["title"]),
			GrandTitle: registry.CoerceString(raw["grandparentTitle"], ""),
			Type:       registry.CoerceString(raw["type"], registry.UnknownName),
			User:       registry.UnknownName,
			Player:     registry.UnknownName,
			State:      registry.UnknownName,
		}
		if user, ok := raw["User"].(map[string]any); ok {
			item.User = registry.CoerceName(user["title"])
		}
		if player, ok := raw["Player"].(map[string]any); ok {
			item.Player = registry.CoerceName(player["product"])
			item.State = registry.CoerceString(player["state"], registry.UnknownName)
		}
		duration := registry.CoerceFloat(raw["duration"])
		if duration > 0 {
			item.ProgressPct = int(registry.CoerceFloat(raw["viewOffset"]) / duration * 100)
		}
		out = append(out, item)
	}
	return out, nil
}

// Libraries fetches the library sections.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	container, err := c.getContainer(ctx, "/library/sections")
	if err != nil {
		return nil, err
	}

	rows, _ := container["Directory"].([]any)
	out := make([]Library, 0, len(rows))
	for _, row := range rows {
		raw, ok := row.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Library{
			Key:   registry.CoerceString(raw["key"], ""),
			Title: registry.CoerceName(raw["title"]),
			Type:  registry.CoerceString(raw["type"], registry.UnknownName),
		})
	}
	return out, nil
}

func (c *Client) getContainer(ctx context.Context, path string) (map[string]any, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var payload struct {
		MediaContainer map[string]any `json:"MediaContainer"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &registry.ProtocolError{Detail: "server response is not valid JSON", Err: err}
	}
	if payload.MediaContainer == nil {
		return nil, &registry.ProtocolError{Detail: "server response is missing the MediaContainer envelope"}
	}
	return payload.MediaContainer, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Plex-Token", c.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", productName)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plex request %s: %w", path, err)
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

// PinClient talks to the plex.tv PIN API for account linking. BaseURL is
// overridable for tests.
type PinClient struct {
	BaseURL  string
	ClientID string
	HTTP     *http.Client
}

type Pin struct {
	ID        int
	Code      string
	ExpiresIn int
	AuthToken string
}

func NewPinClient(clientID string, timeout time.Duration) *PinClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PinClient{
		BaseURL:  "https://plex.tv",
		ClientID: strings.TrimSpace(clientID),
		HTTP:     &http.Client{Timeout: timeout},
	}
}

// RequestPin asks plex.tv for a new linking code.
func (p *PinClient) RequestPin(ctx context.Context) (Pin, error) {
	body, err := p.do(ctx, http.MethodPost, "/api/v2/pins?strong=true")
	if err != nil {
		return Pin{}, err
	}
	return p.decodePin(body, true)
}

// CheckPin polls one linking code. AuthToken is empty until the user has
// approved the code in their account.
func (p *PinClient) CheckPin(ctx context.Context, id int) (Pin, error) {
	body, err := p.do(ctx, http.MethodGet, fmt.Sprintf("/api/v2/pins/%d", id))
	if err != nil {
		return Pin{}, err
	}
	return p.decodePin(body, false)
}

func (p *PinClient) decodePin(body []byte, needCode bool) (Pin, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Pin{}, &registry.ProtocolError{Detail: "pin response is not valid JSON", Err: err}
	}
	pin := Pin{
		ID:        registry.CoerceInt(payload["id"]),
		Code:      registry.CoerceString(payload["code"], ""),
		ExpiresIn: registry.CoerceInt(payload["expiresIn"]),
		AuthToken: registry.CoerceString(payload["authToken"], ""),
	}
	if pin.ID == 0 || (needCode && pin.Code == "") {
		return Pin{}, &registry.ProtocolError{Detail: "pin response is missing id or code"}
	}
	return pin, nil
}

func (p *PinClient) do(ctx context.Context, method, path string) ([]byte, error) {
	endpoint := strings.TrimRight(p.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Product", productName)
	req.Header.Set("X-Plex-Client-Identifier", p.ClientID)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plex.tv request %s: %w", path, err)
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
