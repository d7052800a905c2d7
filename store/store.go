// Package store persists the bridge's synchronization state: progress
// cursors, replay tokens, the ingested-event log, the outbox and entity
// snapshots. All cross-process coordination happens through this store;
// nothing is authoritative in memory.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/adflowio/bridge/config"
	"github.com/adflowio/bridge/logger"
)

const maxErrorLen = 1000

type Store struct {
	pool   *pgxpool.Pool
	schema string
}

func New(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("store pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}

	return &Store{pool: pool, schema: cfg.Schema}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) table(name string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(name)
}

// Migrate creates the bridge tables if they do not exist. Cursors and
// replay states are never deleted once created.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				resource TEXT PRIMARY KEY,
				cursor TIMESTAMPTZ NOT NULL
			)`, s.table("sync_cursors")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				topic TEXT PRIMARY KEY,
				replay_token BYTEA,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.table("replay_states")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				topic TEXT NOT NULL,
				source_record_id TEXT NOT NULL DEFAULT '',
				payload JSONB NOT NULL DEFAULT '{}',
				received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.table("ingested_events")),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS ingested_events_topic_received_idx
			ON %s (topic, received_at)`, s.table("ingested_events")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				resource TEXT NOT NULL,
				action TEXT NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'pending',
				error TEXT NOT NULL DEFAULT '',
				claimed_by TEXT NOT NULL DEFAULT '',
				claimed_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.table("outbox_entries")),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS outbox_entries_claim_idx
			ON %s (resource, status, created_at)`, s.table("outbox_entries")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				external_id TEXT PRIMARY KEY,
				campaign_id BIGINT NOT NULL DEFAULT 0,
				name TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				channel_type TEXT NOT NULL DEFAULT '',
				budget_micros BIGINT NOT NULL DEFAULT 0,
				start_date TEXT NOT NULL DEFAULT '',
				end_date TEXT NOT NULL DEFAULT '',
				external_updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.table("campaign_snapshots")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				external_id TEXT PRIMARY KEY,
				crm_id TEXT NOT NULL DEFAULT '',
				click_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				email_sha256 TEXT NOT NULL DEFAULT '',
				phone_sha256 TEXT NOT NULL DEFAULT '',
				external_updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, s.table("lead_snapshots")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				kind TEXT NOT NULL,
				local_id TEXT NOT NULL,
				remote_id TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (kind, local_id),
				UNIQUE (kind, remote_id)
			)`, s.table("external_id_map")),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store migrate: %w", err)
		}
	}

	logger.Info("store migrated", "schema", s.schema)
	return nil
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
