package main

import (
	"bufio"
	"context"
	"errors"
	"time"

	"github.com/hubboard/hubboard/internal/config"
	"github.com/hubboard/hubboard/internal/connectors/configstore"
	"github.com/hubboard/hubboard/internal/connectors/plex"
	"github.com/hubboard/hubboard/internal/pinflow"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var plexCmd = &cobra.Command{
	Use:   "plex",
	Short: "Plex account linking.",
}

var plexLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link a Plex account and store the granted token.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		vendor := plex.NewLinkVendor(cfg.PlexClientID, cfg.FetchTimeout)
		flow := pinflow.Start(ctx, vendor, pinflow.Options{})
		defer flow.Dispose()

		// Each Enter keypress runs one direct exchange with plex.tv; the
		// background poll only takes over once that exchange comes back
		// pending.
		entered := make(chan struct{}, 1)
		go func() {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				select {
				case entered <- struct{}{}:
				default:
				}
			}
		}()

		shownCode := ""
		for {
			snap := flow.Snapshot()
			if snap.Code != "" && snap.Code != shownCode {
				shownCode = snap.Code
				cmd.Printf("Enter this code at https://plex.tv/link: %s\n", snap.Code)
				cmd.Printf("The code expires in %d seconds.\n", snap.Remaining)
				cmd.Println("Press Enter once you have entered the code.")
			}
			if snap.State == pinflow.StateSuccess {
				break
			}
			if snap.State == pinflow.StateError {
				return errors.New(snap.Error)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-entered:
				snap = flow.Complete(ctx)
				if snap.State == pinflow.StateWaiting {
					cmd.Println("Not approved yet; watching for the grant.")
				}
			case <-time.After(500 * time.Millisecond):
			}
		}

		token, ok := flow.Token()
		if !ok {
			return errors.New("linking finished without a token")
		}

		saveCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pool, err := pgxpool.New(saveCtx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		settings := store.New(pool)

		row, _, err := settings.Get(saveCtx, configstore.KindPlex)
		if err != nil {
			return err
		}
		current, err := configstore.DecodePlexConfig(row.Config)
		if err != nil {
			return err
		}
		current.Token = token
		merged, err := configstore.EncodeConfig(current.Normalized())
		if err != nil {
			return err
		}
		if err := settings.Upsert(saveCtx, store.ConnectorConfig{
			Kind:    configstore.KindPlex,
			Config:  merged,
			Enabled: row.Enabled,
		}); err != nil {
			return err
		}

		cmd.Println("Plex account linked; token stored.")
		return nil
	},
}

func init() {
	plexCmd.AddCommand(plexLinkCmd)
}
