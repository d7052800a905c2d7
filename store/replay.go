package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/adflowio/bridge/internal/replay"
)

// ReplayToken returns the last durably processed replay token for a topic,
// or nil when the topic has never been consumed.
func (s *Store) ReplayToken(ctx context.Context, topic string) (replay.Token, error) {
	query := fmt.Sprintf(`SELECT replay_token FROM %s WHERE topic = $1`, s.table("replay_states"))

	var token []byte
	err := s.pool.QueryRow(ctx, query, topic).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replay token read: %w", err)
	}

	return replay.Token(token), nil
}

// IngestEvent records a received event, optionally enqueues the outbox entry
// routed from it, and advances the topic's replay token — all in one
// transaction. If any step fails the token stays put and the event is
// redelivered on resume (at-least-once, never at-most-once).
func (s *Store) IngestEvent(ctx context.Context, ev IngestedEvent, entry *OutboxEntry, token replay.Token) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ingest begin: %w", err)
	}
	defer tx.Rollback(ctx)

	insertEvent := fmt.Sprintf(`
		INSERT INTO %s (topic, source_record_id, payload, received_at)
		VALUES ($1, $2, $3, $4)
	`, s.table("ingested_events"))

	if _, err := tx.Exec(ctx, insertEvent, ev.Topic, ev.SourceRecordID, ev.Payload, ev.ReceivedAt); err != nil {
		return fmt.Errorf("ingest event insert: %w", err)
	}

	if entry != nil {
		insertEntry := fmt.Sprintf(`
			INSERT INTO %s (resource, action, payload, status)
			VALUES ($1, $2, $3, 'pending')
		`, s.table("outbox_entries"))

		if _, err := tx.Exec(ctx, insertEntry, entry.Resource, entry.Action, entry.Payload); err != nil {
			return fmt.Errorf("ingest outbox insert: %w", err)
		}
	}

	upsertToken := fmt.Sprintf(`
		INSERT INTO %s (topic, replay_token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (topic) DO UPDATE
		SET replay_token = EXCLUDED.replay_token, updated_at = NOW()
	`, s.table("replay_states"))

	if _, err := tx.Exec(ctx, upsertToken, ev.Topic, []byte(token)); err != nil {
		return fmt.Errorf("ingest replay token advance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ingest commit: %w", err)
	}

	return nil
}
