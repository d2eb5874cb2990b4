package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStoreConfig tunes the pgx connection pool behind a PostgresStore.
type PostgresStoreConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	AcquireTimeout  time.Duration
	ApplicationName string
}

// PostgresStore persists status records in a single stream_status table.
// The keyed ON CONFLICT upsert provides the per-key atomic merge, and
// updated_at is stamped with now() so the timestamp is server-assigned.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS stream_status (
    channel_id      TEXT PRIMARY KEY,
    live            BOOLEAN     NOT NULL DEFAULT FALSE,
    playback_url    TEXT        NOT NULL DEFAULT '',
    content_type    TEXT        NOT NULL DEFAULT '',
    thumbnail_url   TEXT        NOT NULL DEFAULT '',
    archive_enabled BOOLEAN     NOT NULL DEFAULT FALSE,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const postgresUpsert = `
INSERT INTO stream_status (channel_id, live, playback_url, content_type, thumbnail_url, archive_enabled)
VALUES ($1, COALESCE($2, FALSE), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, FALSE))
ON CONFLICT (channel_id) DO UPDATE SET
    live            = COALESCE($2, stream_status.live),
    playback_url    = COALESCE($3, stream_status.playback_url),
    content_type    = COALESCE($4, stream_status.content_type),
    thumbnail_url   = COALESCE($5, stream_status.thumbnail_url),
    archive_enabled = COALESCE($6, stream_status.archive_enabled),
    updated_at      = now()
RETURNING channel_id, live, playback_url, content_type, thumbnail_url, archive_enabled, updated_at`

const postgresSelect = `
SELECT channel_id, live, playback_url, content_type, thumbnail_url, archive_enabled, updated_at
FROM stream_status WHERE channel_id = $1`

// NewPostgresStore opens a Postgres-backed status store and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure stream_status schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, channelID string, update Update) (Status, error) {
	key := NormalizeChannelID(channelID)
	row := s.pool.QueryRow(ctx, postgresUpsert,
		key, update.Live, update.PlaybackURL, update.ContentType, update.ThumbnailURL, update.ArchiveEnabled)
	status, err := scanStatus(row)
	if err != nil {
		return Status{}, fmt.Errorf("postgres upsert: %w", err)
	}
	return status, nil
}

func (s *PostgresStore) Get(ctx context.Context, channelID string) (Status, error) {
	row := s.pool.QueryRow(ctx, postgresSelect, NormalizeChannelID(channelID))
	status, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Status{}, ErrNotFound
		}
		return Status{}, fmt.Errorf("postgres get: %w", err)
	}
	return status, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool, bounded by the provided context.
func (s *PostgresStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func scanStatus(row pgx.Row) (Status, error) {
	var status Status
	err := row.Scan(
		&status.ChannelID,
		&status.Live,
		&status.PlaybackURL,
		&status.ContentType,
		&status.ThumbnailURL,
		&status.ArchiveEnabled,
		&status.UpdatedAt,
	)
	if err != nil {
		return Status{}, err
	}
	status.UpdatedAt = status.UpdatedAt.UTC()
	return status, nil
}
