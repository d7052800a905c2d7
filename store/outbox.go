package store

import (
	"context"
	"fmt"
	"time"

	"github.com/adflowio/bridge/logger"
)

// EnqueueOutbox inserts a pending outbox entry outside the event ingest
// path (manual triggers, backfills).
func (s *Store) EnqueueOutbox(ctx context.Context, entry OutboxEntry) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (resource, action, payload, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id
	`, s.table("outbox_entries"))

	var id int64
	if err := s.pool.QueryRow(ctx, query, entry.Resource, entry.Action, entry.Payload).Scan(&id); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}

	return id, nil
}

// ClaimPending claims up to limit pending entries for one resource kind,
// oldest first, flipping them to processing in a single short transaction.
// Rows locked by a concurrent claimant are skipped, never waited on, so two
// processor instances can drain the same kind without double-processing.
// The remote call must happen after this returns, never under the lock.
func (s *Store) ClaimPending(ctx context.Context, resource string, limit int, claimedBy string) ([]OutboxEntry, error) {
	query := fmt.Sprintf(`
		WITH claimable AS (
			SELECT id FROM %s
			WHERE resource = $1 AND status = 'pending'
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE %s o
		SET status = 'processing',
		    claimed_by = $3,
		    claimed_at = NOW(),
		    updated_at = NOW()
		FROM claimable
		WHERE o.id = claimable.id
		RETURNING o.id, o.resource, o.action, o.payload, o.status, o.error,
		          o.claimed_by, o.claimed_at, o.created_at, o.updated_at
	`, s.table("outbox_entries"), s.table("outbox_entries"))

	rows, err := s.pool.Query(ctx, query, resource, limit, claimedBy)
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.Resource, &e.Action, &e.Payload, &e.Status, &e.Error,
			&e.ClaimedBy, &e.ClaimedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}

	return entries, nil
}

// MarkDone finalizes entries in the done terminal state. Only rows still in
// processing are touched; terminal states never transition.
func (s *Store) MarkDone(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'done', error = '', updated_at = NOW()
		WHERE id = ANY($1) AND status = 'processing'
	`, s.table("outbox_entries"))

	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("outbox mark done: %w", err)
	}

	return nil
}

// MarkError finalizes entries in the error terminal state with a truncated
// message.
func (s *Store) MarkError(ctx context.Context, ids []int64, msg string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'error', error = $2, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'processing'
	`, s.table("outbox_entries"))

	if _, err := s.pool.Exec(ctx, query, ids, truncateError(msg)); err != nil {
		return fmt.Errorf("outbox mark error: %w", err)
	}

	return nil
}

// ReclaimStuck returns entries stuck in processing past the staleness
// threshold to pending. A crash between claim and finalize leaves rows
// behind; reclaiming them trades a possible duplicate remote call for
// progress, consistent with at-least-once delivery.
func (s *Store) ReclaimStuck(ctx context.Context, resource string, olderThan time.Duration) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'pending', claimed_by = '', claimed_at = NULL, updated_at = NOW()
		WHERE resource = $1 AND status = 'processing' AND claimed_at < NOW() - make_interval(secs => $2)
	`, s.table("outbox_entries"))

	tag, err := s.pool.Exec(ctx, query, resource, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("outbox reclaim: %w", err)
	}

	if tag.RowsAffected() > 0 {
		logger.Warn("reclaimed stuck outbox entries", "resource", resource, "count", tag.RowsAffected())
	}

	return int(tag.RowsAffected()), nil
}
