package overseerr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/registry"
)

const (
	defaultTimeout   = 15 * time.Second
	maxErrorBodySize = 1 << 20 // 1 MiB
)

// Client talks to an Overseerr (or Jellyseerr) instance. Authentication is
// a static X-Api-Key header on every request; no session state exists.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

type Status struct {
	Version         string `json:"version"`
	CommitTag       string `json:"commitTag"`
	UpdateAvailable bool   `json:"updateAvailable"`
}

type RequestCounts struct {
	Total      int `json:"total"`
	Movie      int `json:"movie"`
	TV         int `json:"tv"`
	Pending    int `json:"pending"`
	Approved   int `json:"approved"`
	Declined   int `json:"declined"`
	Processing int `json:"processing"`
	Available  int `json:"available"`
}

type MediaRequest struct {
	ID          int    `json:"id"`
	Status      int    `json:"status"`
	MediaType   string `json:"media_type"`
	TmdbID      int    `json:"tmdb_id"`
	Title       string `json:"title"`
	RequestedBy string `json:"requested_by"`
	CreatedAt   string `json:"created_at"`
}

// NewClient creates a client for the given base URL and API key.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// GetStatus fetches /api/v1/status. The version field is mandatory on the
// test path: a success response without it is a protocol failure.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	body, err := c.get(ctx, "/api/v1/status", nil)
	if err != nil {
		return Status{}, err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Status{}, &registry.ProtocolError{Detail: "status response is not valid JSON", Err: err}
	}
	version := registry.CoerceString(payload["version"], "")
	if version == "" {
		return Status{}, &registry.ProtocolError{Detail: "status response is missing the version field"}
	}
	return Status{
		Version:         version,
		CommitTag:       registry.CoerceString(payload["commitTag"], registry.UnknownName),
		UpdateAvailable: registry.CoerceBool(payload["updateAvailable"]),
	}, nil
}

// GetRequestCounts fetches /api/v1/request/count with per-field defaulting.
func (c *Client) GetRequestCounts(ctx context.Context) (RequestCounts, error) {
	body, err := c.get(ctx, "/api/v1/request/count", nil)
	if err != nil {
		return RequestCounts{}, err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return RequestCounts{}, &registry.ProtocolError{Detail: "request count response is not valid JSON", Err: err}
	}
	return RequestCounts{
		Total:      registry.CoerceInt(payload["total"]),
		Movie:      registry.CoerceInt(payload["movie"]),
		TV:         registry.CoerceInt(payload["tv"]),
		Pending:    registry.CoerceInt(payload["pending"]),
		Approved:   registry.CoerceInt(payload["approved"]),
		Declined:   registry.CoerceInt(payload["declined"]),
		Processing: registry.CoerceInt(payload["processing"]),
		Available:  registry.CoerceInt(payload["available"]),
	}, nil
}

// ListRequests fetches the most recent media requests without titles; title
// resolution is a separate per-item call.
func (c *Client) ListRequests(ctx context.Context, take int) ([]MediaRequest, error) {
	if take <= 0 {
		take = 20
	}
	body, err := c.get(ctx, "/api/v1/request", url.Values{
		"take": []string{strconv.Itoa(take)},
		"sort": []string{"added"},
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &registry.ProtocolError{Detail: "request list response is not valid JSON", Err: err}
	}

	out := make([]MediaRequest, 0, len(payload.Results))
	for _, raw := range payload.Results {
		req := MediaRequest{
			ID:        registry.CoerceInt(raw["id"]),
			Status:    registry.CoerceInt(raw["status"]),
			MediaType: registry.CoerceString(raw["type"], "movie"),
			Title:     registry.UnknownName,
			CreatedAt: registry.CoerceString(raw["createdAt"], ""),
		}
		if media, ok := raw["media"].(map[string]any); ok {
			req.TmdbID = registry.CoerceInt(media["tmdbId"])
			req.MediaType = registry.CoerceString(media["mediaType"], req.MediaType)
		}
		if requestedBy, ok := raw["requestedBy"].(map[string]any); ok {
			req.RequestedBy = registry.CoerceName(requestedBy["displayName"])
		} else {
			req.RequestedBy = registry.UnknownName
		}
		out = append(out, req)
	}
	return out, nil
}

// ResolveTitle looks up the display title for a movie or tv item.
func (c *Client) ResolveTitle(ctx context.Context, mediaType string, tmdbID int) (string, error) {
	if tmdbID == 0 {
		return registry.UnknownName, nil
	}
	path := "/api/v1/movie/" + strconv.Itoa(tmdbID)
	titleField := "title"
	if strings.EqualFold(mediaType, "tv") {
		path = "/api/v1/tv/" + strconv.Itoa(tmdbID)
		titleField = "name"
	}
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return "", err
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return registry.UnknownName, nil
	}
	return registry.CoerceName(payload[titleField]), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hubboard")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overseerr request %s: %w", path, err)
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
