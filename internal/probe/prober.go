// Package probe periodically runs connection tests against every enabled
// connector and exports the result as gauges, so an unreachable service
// shows up on the dashboard before a widget fetch trips over it.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/hubboard/hubboard/internal/connectors/registry"
	"github.com/hubboard/hubboard/internal/metrics"
	"github.com/hubboard/hubboard/internal/store"
	"golang.org/x/sync/errgroup"
)

const probeWorkers = 3

type Prober struct {
	Registry *registry.ConnectorRegistry
	Settings store.Settings
	Interval time.Duration
}

// Run probes immediately at startup, then on every interval tick until the
// context is cancelled.
func (p *Prober) Run(ctx context.Context) {
	if p.Registry == nil || p.Settings == nil || p.Interval <= 0 {
		return
	}

	if err := p.RunOnce(ctx); err != nil {
		slog.Error("initial probe failed", "err", err)
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				slog.Error("scheduled probe failed", "err", err)
			}
		}
	}
}

// RunOnce tests every enabled connector in parallel. Individual failures
// are recorded in the gauges, not returned; the error covers only listing
// the settings.
func (p *Prober) RunOnce(ctx context.Context) error {
	configs, err := p.Settings.List(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeWorkers)
	for _, cfg := range configs {
		if !cfg.Enabled {
			metrics.ConnectorUp.WithLabelValues(cfg.Kind).Set(0)
			continue
		}
		connector, ok := p.Registry.Get(cfg.Kind)
		if !ok {
			slog.Warn("probe skipped unknown connector kind", "kind", cfg.Kind)
			continue
		}
		g.Go(func() error {
			result := connector.TestConnection(gctx, cfg.Config)
			if result.Success {
				metrics.ConnectorUp.WithLabelValues(cfg.Kind).Set(1)
				metrics.ProbeLastSuccessTimestamp.WithLabelValues(cfg.Kind).SetToCurrentTime()
			} else {
				metrics.ConnectorUp.WithLabelValues(cfg.Kind).Set(0)
				slog.Info("probe failed", "kind", cfg.Kind, "message", result.Message)
			}
			return nil
		})
	}
	return g.Wait()
}
