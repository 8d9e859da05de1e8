// Package unifi implements the network controller connector. The
// controller authenticates with a username/password login that returns
// session cookies and a CSRF token; both are cached and reused until the
// session ages out or the controller rejects it.
package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/connectors/session"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultTimeout   = 15 * time.Second
	maxErrorBodySize = 1 << 20 // 1 MiB

	// Controllers invalidate idle sessions server-side; re-login after 30
	// minutes rather than discovering the expiry via a 401.
	sessionTTL = 30 * time.Minute

	csrfHeader = "X-Csrf-Token"
)

// Client talks to a UniFi OS controller. Login state is shared through the
// session store so repeated fetches reuse one controller session.
type Client struct {
	cfg      configstore.UniFiConfig
	http     *http.Client
	sessions session.Store
	now      func() time.Time
}

func NewClient(cfg configstore.UniFiConfig, sessions session.Store, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		cfg: cfg.Normalized(),
		http: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: transport,
		},
		sessions: sessions,
		now:      time.Now,
	}
}

func (c *Client) sessionKey() string {
	return session.Key(configstore.KindUniFi, c.cfg.Endpoint(), c.cfg.Username)
}

// Login authenticates against /api/auth/login and caches the resulting
// cookies and CSRF token. Safe to call when a session already exists; the
// new session replaces the old one.
func (c *Client) Login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return err
	}

	endpoint := c.cfg.BaseURL() + "/api/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hubboard")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unifi login: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &registry.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Endpoint:   endpoint,
			Body:       string(body),
		}
	}

	sess := session.Session{
		Cookies:   resp.Cookies(),
		CSRFToken: resp.Header.Get(csrfHeader),
		Ready:     true,
		LastUsed:  c.now(),
		ExpiresAt: c.now().Add(sessionTTL),
	}
	c.sessions.Put(c.sessionKey(), sess)
	return nil
}

// Logout drops the cached session without contacting the controller.
func (c *Client) Logout() {
	c.sessions.Invalidate(c.sessionKey())
}

func (c *Client) ensureSession(ctx context.Context) (session.Session, error) {
	if sess, ok := c.sessions.Get(c.sessionKey()); ok && sess.Usable(c.now()) {
		return sess, nil
	}
	if err := c.Login(ctx); err != nil {
		return session.Session{}, err
	}
	sess, ok := c.sessions.Get(c.sessionKey())
	if !ok {
		return session.Session{}, &registry.ProtocolError{Detail: "login succeeded but no session was stored"}
	}
	return sess, nil
}

// get performs an authenticated GET. A 401 means the cached session died
// early; it is invalidated and the request retried once after a fresh login.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	body, status, err := c.do(ctx, path)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.sessions.Invalidate(c.sessionKey())
		body, status, err = c.do(ctx, path)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		return nil, &registry.HTTPError{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			Endpoint:   c.cfg.BaseURL() + path,
			Body:       string(body),
		}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, path string) ([]byte, int, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return nil, 0, err
	}

	endpoint := c.cfg.BaseURL() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hubboard")
	if sess.CSRFToken != "" {
		req.Header.Set(csrfHeader, sess.CSRFToken)
	}
	// Seed the jar rather than attaching cookies per-request so a cached
	// session and the jar's own copies never produce duplicate headers.
	if u, err := url.Parse(c.cfg.BaseURL()); err == nil {
		c.http.Jar.SetCookies(u, sess.Cookies)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("unifi request %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

type NetworkClient struct {
	Name     string `json:"name"`
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Network  string `json:"network"`
	Wired    bool   `json:"wired"`
	SignalDB int    `json:"signal_db"`
}

type ClientsSummary struct {
	Total    int             `json:"total"`
	Wired    int             `json:"wired"`
	Wireless int             `json:"wireless"`
	Clients  []NetworkClient `json:"clients"`
}

type Subsystem struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	NumUsers int    `json:"num_users"`
}

// ListClients fetches the active client list for the configured site.
func (c *Client) ListClients(ctx context.Context) (ClientsSummary, error) {
	rows, err := c.getData(ctx, c.sitePath("/stat/sta"))
	if err != nil {
		return ClientsSummary{}, err
	}

	summary := ClientsSummary{Clients: make([]NetworkClient, 0, len(rows))}
	for _, row := range rows {
		name := registry.CoerceString(row["name"], "")
		if name == "" {
			name = registry.CoerceName(row["hostname"])
		}
		nc := NetworkClient{
			Name:     name,
			IP:       registry.CoerceString(row["ip"], ""),
			MAC:      registry.CoerceString(row["mac"], ""),
			Network:  registry.CoerceString(row["network"], ""),
			Wired:    registry.CoerceBool(row["is_wired"]),
			SignalDB: registry.CoerceInt(row["signal"]),
		}
		summary.Total++
		if nc.Wired {
			summary.Wired++
		} else {
			summary.Wireless++
		}
		summary.Clients = append(summary.Clients, nc)
	}
	return summary, nil
}

// Health fetches the per-subsystem health rollup for the configured site.
func (c *Client) Health(ctx context.Context) ([]Subsystem, error) {
	rows, err := c.getData(ctx, c.sitePath("/stat/health"))
	if err != nil {
		return nil, err
	}

	out := make([]Subsystem, 0, len(rows))
	for _, row := range rows {
		out = append(out, Subsystem{
			Name:     registry.CoerceString(row["subsystem"], registry.UnknownName),
			Status:   registry.CoerceString(row["status"], registry.UnknownName),
			NumUsers: registry.CoerceInt(row["num_user"]),
		})
	}
	return out, nil
}

// getData unwraps the controller's {"data":[...]} envelope.
func (c *Client) getData(ctx context.Context, path string) ([]map[string]any, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &registry.ProtocolError{Detail: "controller response is not valid JSON", Err: err}
	}
	return payload.Data, nil
}

func (c *Client) sitePath(suffix string) string {
	return "/proxy/network/api/s/" + url.PathEscape(strings.ToLower(c.cfg.Site)) + suffix
}
