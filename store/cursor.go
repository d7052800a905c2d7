package store

import (
	"context"
	"fmt"
	"time"
)

// Cursor returns the progress cursor for a resource, creating it lazily at
// now minus the lookback window on first access.
func (s *Store) Cursor(ctx context.Context, resource string, lookback time.Duration) (time.Time, error) {
	insert := fmt.Sprintf(`
		INSERT INTO %s (resource, cursor)
		VALUES ($1, $2)
		ON CONFLICT (resource) DO NOTHING
	`, s.table("sync_cursors"))

	if _, err := s.pool.Exec(ctx, insert, resource, time.Now().UTC().Add(-lookback)); err != nil {
		return time.Time{}, fmt.Errorf("cursor create: %w", err)
	}

	query := fmt.Sprintf(`SELECT cursor FROM %s WHERE resource = $1`, s.table("sync_cursors"))

	var cursor time.Time
	if err := s.pool.QueryRow(ctx, query, resource).Scan(&cursor); err != nil {
		return time.Time{}, fmt.Errorf("cursor read: %w", err)
	}

	return cursor.UTC(), nil
}

// AdvanceCursor moves the cursor forward, but only if the candidate strictly
// exceeds the stored value. Out-of-order observations never regress the
// cursor. Returns whether an advance happened.
func (s *Store) AdvanceCursor(ctx context.Context, resource string, to time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET cursor = $2
		WHERE resource = $1 AND cursor < $2
	`, s.table("sync_cursors"))

	tag, err := s.pool.Exec(ctx, query, resource, to.UTC())
	if err != nil {
		return false, fmt.Errorf("cursor advance: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
