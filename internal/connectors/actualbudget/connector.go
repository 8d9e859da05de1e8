package actualbudget

import (
	"context"
	"fmt"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/connectors/session"
)

const (
	MetricAccounts    = "accounts"
	MetricBudgetMonth = "budget-month"
)

// Connector implements the connector contract for the budget ledger.
type Connector struct {
	Timeout  time.Duration
	Sessions session.Store
}

func New(sessions session.Store, timeout time.Duration) *Connector {
	return &Connector{Timeout: timeout, Sessions: sessions}
}

func (c *Connector) Kind() string        { return configstore.KindActualBudget }
func (c *Connector) DisplayName() string { return "Actual Budget" }

func (c *Connector) DecodeConfig(raw []byte) (any, error) {
	cfg, err := configstore.DecodeActualBudgetConfig(raw)
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

// TestConnection tears the working copy down first so the test exercises a
// full login and file open rather than trusting whatever is cached.
func (c *Connector) TestConnection(ctx context.Context, raw []byte) registry.TestResult {
	cfg, err := configstore.DecodeActualBudgetConfig(raw)
	if err != nil {
		return registry.FailTest(err, "")
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return registry.FailTest(registry.ValidationErr(err), "")
	}

	client := NewClient(cfg, c.Sessions, c.Timeout)
	client.Teardown()
	sess, err := client.Init(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return registry.FailTest(err, cfg.Endpoint())
	}

	open := 0
	for _, account := range accounts {
		if !account.Closed {
			open++
		}
	}
	return registry.TestResult{
		Success: true,
		Message: fmt.Sprintf("Opened budget file on %s", cfg.Endpoint()),
		Details: map[string]any{
			"file_id":       sess.Meta["file_id"],
			"accounts":      len(accounts),
			"open_accounts": open,
		},
	}
}

func (c *Connector) FetchMetric(ctx context.Context, raw []byte, metricID string) (any, error) {
	cfg, err := configstore.DecodeActualBudgetConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, registry.ValidationErr(err)
	}

	return registry.Dispatch(ctx, c.Kind(), metricID, cfg, map[string]registry.MetricHandler{
		MetricAccounts:    c.fetchAccounts,
		MetricBudgetMonth: c.fetchBudgetMonth,
	})
}

func (c *Connector) fetchAccounts(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.ActualBudgetConfig)
	client := NewClient(typed, c.Sessions, c.Timeout)
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	return accounts, nil
}

func (c *Connector) fetchBudgetMonth(ctx context.Context, cfg any) (any, error) {
	typed := cfg.(configstore.ActualBudgetConfig)
	client := NewClient(typed, c.Sessions, c.Timeout)
	month, err := client.Month(ctx, "")
	if err != nil {
		return nil, registry.Classify(err, typed.Endpoint())
	}
	return month, nil
}

func (c *Connector) AvailableMetrics() []registry.MetricInfo {
	return []registry.MetricInfo{
		{
			ID:          MetricAccounts,
			DisplayName: "Account Balances",
			Description: "All accounts with current balances.",
			WidgetTypes: []string{"list", "table"},
		},
		{
			ID:          MetricBudgetMonth,
			DisplayName: "Budget Month",
			Description: "Budgeted, spent and remaining for the current month.",
			WidgetTypes: []string{"stat", "chart"},
		},
	}
}

func (c *Connector) APICapabilities() []registry.APICapability {
	return []registry.APICapability{
		{Name: "login", Method: "POST", Path: "/account/login", Description: "Password login returning a token", Implemented: true},
		{Name: "list-files", Method: "GET", Path: "/sync/list-user-files", Description: "Budget files available for sync", Implemented: true},
		{Name: "accounts", Method: "GET", Path: "/data/accounts", Description: "Accounts from the open working copy", Implemented: true},
		{Name: "budget-month", Method: "GET", Path: "/data/budget-month", Description: "Month summary from the open working copy", Implemented: true},
		{Name: "transactions", Method: "GET", Path: "/data/transactions", Description: "Transaction list", Implemented: false},
	}
}

func (c *Connector) typedConfig(cfg any) (configstore.ActualBudgetConfig, error) {
	typed, ok := cfg.(configstore.ActualBudgetConfig)
	if !ok {
		return configstore.ActualBudgetConfig{}, fmt.Errorf("unexpected config type %T", cfg)
	}
	return typed, nil
}
