package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubboard/hubboard/internal/config"
	"github.com/hubboard/hubboard/internal/connectors/plex"
	"github.com/hubboard/hubboard/internal/connectors/session"
	httpapp "github.com/hubboard/hubboard/internal/http"
	"github.com/hubboard/hubboard/internal/metrics"
	"github.com/hubboard/hubboard/internal/pinflow"
	"github.com/hubboard/hubboard/internal/probe"
	"github.com/hubboard/hubboard/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the dashboard API and the background probe loop.",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationStructuredLog: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	settings := store.New(pool)
	sessions := session.NewMemoryStore()
	reg, err := buildConnectorRegistry(cfg, sessions)
	if err != nil {
		return err
	}

	flows := pinflow.NewManager(pinflow.Options{})
	defer flows.DisposeAll()
	linkVendor := plex.NewLinkVendor(cfg.PlexClientID, cfg.FetchTimeout)

	if cfg.ProbeEnabled {
		prober := &probe.Prober{Registry: reg, Settings: settings, Interval: cfg.ProbeInterval}
		go prober.Run(ctx)
	}

	metricsErr := metrics.Serve(ctx, cfg.MetricsAddr)

	srv, err := httpapp.NewEchoServer(cfg, settings, reg, flows, linkVendor)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-metricsErr:
		// A nil channel here just means metrics are disabled.
		return err
	}
}

var probeCmd = &cobra.Command{
	Use:         "probe",
	Short:       "Test every enabled connector once and exit.",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationStructuredLog: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
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
		prober := &probe.Prober{Registry: reg, Settings: store.New(pool), Interval: cfg.ProbeInterval}
		return prober.RunOnce(ctx)
	},
}
