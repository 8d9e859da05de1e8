package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hubboard/hubboard/internal/config"
	"github.com/hubboard/hubboard/internal/connectors/actualbudget"
	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/homeassistant"
	"github.com/hubboard/hubboard/internal/connectors/overseerr"
	"github.com/hubboard/hubboard/internal/connectors/plex"
	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/connectors/session"
	"github.com/hubboard/hubboard/internal/connectors/unifi"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func buildConnectorRegistry(cfg config.Config, sessions session.Store) (*registry.ConnectorRegistry, error) {
	reg := registry.NewRegistry()
	if err := reg.Register(overseerr.New(cfg.FetchTimeout)); err != nil {
		return nil, err
	}
	if err := reg.Register(unifi.New(sessions, cfg.FetchTimeout)); err != nil {
		return nil, err
	}
	if err := reg.Register(homeassistant.New(cfg.FetchTimeout)); err != nil {
		return nil, err
	}
	if err := reg.Register(actualbudget.New(sessions, cfg.FetchTimeout)); err != nil {
		return nil, err
	}
	if err := reg.Register(plex.New(cfg.FetchTimeout)); err != nil {
		return nil, err
	}
	return reg, nil
}

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "Inspect and test the configured connectors.",
}

var connectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connectors and their stored state.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		settings := store.New(pool)

		reg, err := buildConnectorRegistry(cfg, session.NewMemoryStore())
		if err != nil {
			return err
		}

		for _, connector := range reg.All() {
			row, _, err := settings.Get(ctx, connector.Kind())
			if err != nil {
				return err
			}
			state := "disabled"
			if row.Enabled {
				state = "enabled"
			}
			source := "(not configured)"
			if decoded, err := connector.DecodeConfig(row.Config); err == nil {
				if connector.IsConfigured(decoded) {
					source = connector.SourceName(decoded)
				}
			}
			cmd.Printf("%-14s %-9s %s\n", connector.Kind(), state, source)
		}
		return nil
	},
}

var connectorsTestPromptSecret bool

var connectorsTestCmd = &cobra.Command{
	Use:   "test <kind>",
	Short: "Run a connection test against one connector.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.FetchTimeout+15*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		reg, err := buildConnectorRegistry(cfg, session.NewMemoryStore())
		if err != nil {
			return err
		}
		connector, ok := reg.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown connector kind %q", args[0])
		}

		row, _, err := store.New(pool).Get(ctx, connector.Kind())
		if err != nil {
			return err
		}
		raw := row.Config
		if connectorsTestPromptSecret {
			raw, err = withPromptedSecret(cmd, connector.Kind(), raw)
			if err != nil {
				return err
			}
		}

		result := connector.TestConnection(ctx, raw)
		if !result.Success {
			cmd.Printf("FAIL %s\n", result.Message)
			return &exitError{code: 1, silent: true}
		}
		cmd.Printf("OK   %s\n", result.Message)
		for key, value := range result.Details {
			cmd.Printf("     %s: %v\n", key, value)
		}
		return nil
	},
}

// secretFieldForKind names the JSON field that holds each connector's secret.
func secretFieldForKind(kind string) (string, bool) {
	switch kind {
	case configstore.KindOverseerr:
		return "api_key", true
	case configstore.KindUniFi, configstore.KindActualBudget:
		return "password", true
	case configstore.KindHomeAssistant, configstore.KindPlex:
		return "token", true
	}
	return "", false
}

// withPromptedSecret reads the connector secret from the terminal and lays
// it over the stored config, so a test can run before anything secret is
// persisted.
func withPromptedSecret(cmd *cobra.Command, kind string, raw []byte) ([]byte, error) {
	field, ok := secretFieldForKind(kind)
	if !ok {
		return raw, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("--prompt-secret requires an interactive terminal")
	}

	cmd.Printf("%s %s: ", kind, field)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errors.New("secret is empty")
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
	}
	if decoded == nil {
		decoded = make(map[string]any)
	}
	decoded[field] = string(secret)
	return json.Marshal(decoded)
}

func init() {
	connectorsCmd.AddCommand(connectorsListCmd, connectorsTestCmd)
	connectorsTestCmd.Flags().BoolVar(&connectorsTestPromptSecret, "prompt-secret", false, "Prompt for the connector secret instead of using the stored one")
}
