// Package store persists connector configuration in Postgres. Config
// payloads are opaque JSON here; decoding and validation belong to the
// connector that owns the kind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectorConfig is one row of connector settings.
type ConnectorConfig struct {
	Kind      string
	Config    []byte
	Enabled   bool
	UpdatedAt time.Time
}

// Settings is the storage surface the HTTP layer and the prober depend on.
type Settings interface {
	Get(ctx context.Context, kind string) (ConnectorConfig, bool, error)
	List(ctx context.Context) ([]ConnectorConfig, error)
	Upsert(ctx context.Context, cfg ConnectorConfig) error
	SetEnabled(ctx context.Context, kind string, enabled bool) (bool, error)
	Delete(ctx context.Context, kind string) error
}

// Store is the pgx-backed Settings implementation.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, kind string) (ConnectorConfig, bool, error) {
	var out ConnectorConfig
	row := s.pool.QueryRow(ctx,
		`SELECT kind, config, enabled, updated_at FROM connector_configs WHERE kind = $1`,
		kind,
	)
	if err := row.Scan(&out.Kind, &out.Config, &out.Enabled, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConnectorConfig{}, false, nil
		}
		return ConnectorConfig{}, false, err
	}
	return out, true, nil
}

func (s *Store) List(ctx context.Context) ([]ConnectorConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, config, enabled, updated_at FROM connector_configs ORDER BY kind`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConnectorConfig
	for rows.Next() {
		var cfg ConnectorConfig
		if err := rows.Scan(&cfg.Kind, &cfg.Config, &cfg.Enabled, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, cfg ConnectorConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO connector_configs (kind, config, enabled, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (kind) DO UPDATE
		 SET config = EXCLUDED.config, enabled = EXCLUDED.enabled, updated_at = now()`,
		cfg.Kind, cfg.Config, cfg.Enabled,
	)
	return err
}

func (s *Store) SetEnabled(ctx context.Context, kind string, enabled bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE connector_configs SET enabled = $2, updated_at = now() WHERE kind = $1`,
		kind, enabled,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Delete(ctx context.Context, kind string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM connector_configs WHERE kind = $1`, kind)
	return err
}
