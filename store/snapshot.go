package store

import (
	"context"
	"fmt"
)

// UpsertCampaignSnapshot writes the last-known remote state of one
// campaign, keyed by its stable external identifier. Each upsert is its own
// short transaction so one bad row never aborts a whole pull.
func (s *Store) UpsertCampaignSnapshot(ctx context.Context, snap CampaignSnapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (external_id, campaign_id, name, status, channel_type,
		                budget_micros, start_date, end_date, external_updated_at, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (external_id) DO UPDATE
		SET campaign_id = EXCLUDED.campaign_id,
		    name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    channel_type = EXCLUDED.channel_type,
		    budget_micros = EXCLUDED.budget_micros,
		    start_date = EXCLUDED.start_date,
		    end_date = EXCLUDED.end_date,
		    external_updated_at = EXCLUDED.external_updated_at,
		    last_synced_at = NOW()
	`, s.table("campaign_snapshots"))

	_, err := s.pool.Exec(ctx, query, snap.ExternalID, snap.CampaignID, snap.Name, snap.Status,
		snap.ChannelType, snap.BudgetMicros, snap.StartDate, snap.EndDate, snap.ExternalUpdatedAt)
	if err != nil {
		return fmt.Errorf("campaign snapshot upsert: %w", err)
	}

	return nil
}

// UpsertLeadSnapshot writes the last-known remote state of one lead.
func (s *Store) UpsertLeadSnapshot(ctx context.Context, snap LeadSnapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (external_id, crm_id, click_id, status, email_sha256,
		                phone_sha256, external_updated_at, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (external_id) DO UPDATE
		SET crm_id = EXCLUDED.crm_id,
		    click_id = EXCLUDED.click_id,
		    status = EXCLUDED.status,
		    email_sha256 = EXCLUDED.email_sha256,
		    phone_sha256 = EXCLUDED.phone_sha256,
		    external_updated_at = EXCLUDED.external_updated_at,
		    last_synced_at = NOW()
	`, s.table("lead_snapshots"))

	_, err := s.pool.Exec(ctx, query, snap.ExternalID, snap.CRMID, snap.ClickID, snap.Status,
		snap.EmailSHA256, snap.PhoneSHA256, snap.ExternalUpdatedAt)
	if err != nil {
		return fmt.Errorf("lead snapshot upsert: %w", err)
	}

	return nil
}

// MapExternalID records a cross-system identity correlation. Mappings are
// written opportunistically wherever one is first discovered; conflicts
// mean it is already known and are ignored.
func (s *Store) MapExternalID(ctx context.Context, kind, localID, remoteID string) error {
	if localID == "" || remoteID == "" {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (kind, local_id, remote_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, s.table("external_id_map"))

	if _, err := s.pool.Exec(ctx, query, kind, localID, remoteID); err != nil {
		return fmt.Errorf("external id map: %w", err)
	}

	return nil
}
