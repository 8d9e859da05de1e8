// Package actualbudget implements the budget ledger connector. Unlike the
// pure-REST vendors, the server hands out a working copy of one budget file
// per login: opening a file is stateful on the server side, so the cached
// session is a ready flag with no expiry and a different sync id must tear
// the old working copy down before opening its own.
package actualbudget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/connectors/session"
)

const (
	defaultTimeout   = 20 * time.Second
	maxErrorBodySize = 1 << 20 // 1 MiB

	tokenHeader = "X-Actual-Token"

	metaFileID = "file_id"
	metaSyncID = "sync_id"
)

// Client talks to an Actual-style sync server. The working copy is opened
// once and reused; Session.Ready marks it open.
type Client struct {
	cfg      configstore.ActualBudgetConfig
	http     *http.Client
	sessions session.Store
	now      func() time.Time
}

type Account struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Balance float64 `json:"balance"`
	Closed  bool    `json:"closed"`
}

type BudgetMonth struct {
	Month     string  `json:"month"`
	Budgeted  float64 `json:"budgeted"`
	Spent     float64 `json:"spent"`
	ToBudget  float64 `json:"to_budget"`
	Income    float64 `json:"income"`
	Remaining float64 `json:"remaining"`
}

func NewClient(cfg configstore.ActualBudgetConfig, sessions session.Store, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:      cfg.Normalized(),
		http:     &http.Client{Timeout: timeout},
		sessions: sessions,
		now:      time.Now,
	}
}

// workspaceKey is keyed by server only: the server holds one working copy
// at a time, so a second sync id must be able to see (and tear down) the
// copy the first one left open.
func (c *Client) workspaceKey() string {
	return session.Key(configstore.KindActualBudget, c.cfg.Endpoint())
}

// Init logs in and opens the working copy for the configured sync id. An
// open working copy for a different sync id is torn down first; one for the
// same sync id is reused as-is.
func (c *Client) Init(ctx context.Context) (session.Session, error) {
	if sess, ok := c.sessions.Get(c.workspaceKey()); ok && sess.Ready {
		if sess.Meta[metaSyncID] == strings.ToLower(c.cfg.SyncID) {
			return sess, nil
		}
		c.Teardown()
	}

	token, err := c.login(ctx)
	if err != nil {
		return session.Session{}, err
	}
	fileID, err := c.findBudgetFile(ctx, token)
	if err != nil {
		return session.Session{}, err
	}

	sess := session.Session{
		Token:    token,
		Ready:    true,
		LastUsed: c.now(),
		Meta: map[string]string{
			metaFileID: fileID,
			metaSyncID: strings.ToLower(c.cfg.SyncID),
		},
	}
	c.sessions.Put(c.workspaceKey(), sess)
	return sess, nil
}

// Teardown closes the working copy. Idempotent.
func (c *Client) Teardown() {
	c.sessions.Invalidate(c.workspaceKey())
}

func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{"password": c.cfg.Password})
	if err != nil {
		return "", err
	}
	body, err := c.post(ctx, "/account/login", "", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &registry.ProtocolError{Detail: "login response is not valid JSON", Err: err}
	}
	if resp.Data.Token == "" {
		// The server reports a wrong password as a 200 with no token.
		return "", &registry.ClassifiedError{
			Kind:    registry.FailureAuth,
			Message: "authentication failed: credentials were rejected by the server",
		}
	}
	return resp.Data.Token, nil
}

func (c *Client) findBudgetFile(ctx context.Context, token string) (string, error) {
	body, err := c.get(ctx, "/sync/list-user-files", token, nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Data []struct {
			FileID  string `json:"fileId"`
			GroupID string `json:"groupId"`
			Name    string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &registry.ProtocolError{Detail: "file list response is not valid JSON", Err: err}
	}
	want := strings.ToLower(c.cfg.SyncID)
	for _, file := range resp.Data {
		if strings.ToLower(file.FileID) == want || strings.ToLower(file.GroupID) == want {
			return file.FileID, nil
		}
	}
	return "", &registry.ProtocolError{Detail: fmt.Sprintf("no budget file matches sync id %s", c.cfg.SyncID)}
}

// Accounts reads the account list from the open working copy.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	sess, err := c.Init(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, "/data/accounts", sess.Token, url.Values{"fileId": []string{sess.Meta[metaFileID]}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &registry.ProtocolError{Detail: "accounts response is not valid JSON", Err: err}
	}

	out := make([]Account, 0, len(payload.Data))
	for _, raw := range payload.Data {
		out = append(out, Account{
			ID:      registry.CoerceString(raw["id"], ""),
			Name:    registry.CoerceName(raw["name"]),
			Type:    registry.CoerceString(raw["type"], registry.UnknownName),
			Balance: registry.CoerceFloat(raw["balance"]) / 100,
			Closed:  registry.CoerceBool(raw["closed"]),
		})
	}
	return out, nil
}

// Month reads one month's budget summary from the open working copy. Month
// is "YYYY-MM"; empty means the server's current month.
func (c *Client) Month(ctx context.Context, month string) (BudgetMonth, error) {
	sess, err := c.Init(ctx)
	if err != nil {
		return BudgetMonth{}, err
	}
	query := url.Values{"fileId": []string{sess.Meta[metaFileID]}}
	if month != "" {
		query.Set("month", month)
	}
	body, err := c.get(ctx, "/data/budget-month", sess.Token, query)
	if err != nil {
		return BudgetMonth{}, err
	}
	var payload struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return BudgetMonth{}, &registry.ProtocolError{Detail: "budget month response is not valid JSON", Err: err}
	}
	return BudgetMonth{
		Month:     registry.CoerceString(payload.Data["month"], month),
		Budgeted:  registry.CoerceFloat(payload.Data["budgeted"]) / 100,
		Spent:     registry.CoerceFloat(payload.Data["spent"]) / 100,
		ToBudget:  registry.CoerceFloat(payload.Data["toBudget"]) / 100,
		Income:    registry.CoerceFloat(payload.Data["income"]) / 100,
		Remaining: registry.CoerceFloat(payload.Data["remaining"]) / 100,
	}, nil
}

func (c *Client) get(ctx context.Context, path, token string, query url.Values) ([]byte, error) {
	endpoint := c.cfg.ServerURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, token)
}

func (c *Client) post(ctx context.Context, path, token string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, token)
}

func (c *Client) do(req *http.Request, token string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hubboard")
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("actualbudget request %s: %w", req.URL.Path, err)
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
			Endpoint:   req.URL.String(),
			Body:       string(body),
		}
	}
	return body, nil
}
