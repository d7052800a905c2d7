// Package puller incrementally mirrors remote advertising entities into
// local snapshots using a high-water-mark cursor per resource kind.
package puller

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/adflowio/bridge/ads"
	"github.com/adflowio/bridge/config"
	"github.com/adflowio/bridge/internal/replay"
	"github.com/adflowio/bridge/logger"
	"github.com/adflowio/bridge/store"
	"github.com/adflowio/bridge/telemetry"
)

// Store is the slice of the persistent store the puller needs.
type Store interface {
	Cursor(ctx context.Context, resource string, lookback time.Duration) (time.Time, error)
	AdvanceCursor(ctx context.Context, resource string, to time.Time) (bool, error)
	UpsertCampaignSnapshot(ctx context.Context, snap store.CampaignSnapshot) error
	UpsertLeadSnapshot(ctx context.Context, snap store.LeadSnapshot) error
	MapExternalID(ctx context.Context, kind, localID, remoteID string) error
}

// EventPublisher pushes lead upserts back to the CRM as platform events.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, record map[string]any) (replay.Token, error)
}

type Puller struct {
	store     Store
	ads       ads.Client
	publisher EventPublisher
	cfg       config.PullerConfig
}

func New(st Store, client ads.Client, publisher EventPublisher, cfg config.PullerConfig) *Puller {
	return &Puller{
		store:     st,
		ads:       client,
		publisher: publisher,
		cfg:       cfg,
	}
}

// PullCampaigns mirrors campaigns modified at or after the current cursor
// and advances the cursor to the newest change observed. The at-or-after
// filter means a row sharing the exact cursor timestamp is re-pulled on the
// next run; re-upserting is harmless and preferred over ever dropping a
// record.
func (p *Puller) PullCampaigns(ctx context.Context) (int, error) {
	since, err := p.store.Cursor(ctx, store.ResourceCampaign, p.cfg.Lookback.Std())
	if err != nil {
		return 0, err
	}

	rows, err := queryWithRetry(ctx, "campaign", func(ctx context.Context) ([]ads.Campaign, error) {
		return p.ads.CampaignsModifiedSince(ctx, since)
	})
	if err != nil {
		return 0, fmt.Errorf("campaign delta query: %w", err)
	}

	processed := 0
	watermark := since
	for _, row := range rows {
		if err := p.store.UpsertCampaignSnapshot(ctx, ads.CampaignSnapshot(row)); err != nil {
			logger.Error("campaign snapshot upsert failed", "externalID", row.ResourceName, "error", err)
			continue
		}

		processed++
		telemetry.RowsPulled.WithLabelValues(store.ResourceCampaign).Inc()

		if row.UpdatedAt.After(watermark) {
			watermark = row.UpdatedAt
		}
	}

	p.advance(ctx, store.ResourceCampaign, since, watermark)

	logger.Info("campaign delta pull completed", "processed", processed, "since", since, "watermark", watermark)
	return processed, nil
}

// PullLeads mirrors changed leads and publishes a lead-upsert platform
// event to the CRM for each row. A publish failure is logged per row and
// never aborts the pull; the next run re-observes the lead.
func (p *Puller) PullLeads(ctx context.Context) (int, error) {
	since, err := p.store.Cursor(ctx, store.ResourceLead, p.cfg.Lookback.Std())
	if err != nil {
		return 0, err
	}

	rows, err := queryWithRetry(ctx, "lead", func(ctx context.Context) ([]ads.Lead, error) {
		return p.ads.LeadsModifiedSince(ctx, since)
	})
	if err != nil {
		return 0, fmt.Errorf("lead delta query: %w", err)
	}

	processed := 0
	watermark := since
	for _, row := range rows {
		if err := p.store.UpsertLeadSnapshot(ctx, ads.LeadSnapshot(row)); err != nil {
			logger.Error("lead snapshot upsert failed", "externalID", row.ResourceName, "error", err)
			continue
		}

		if err := p.store.MapExternalID(ctx, store.ResourceLead, row.CRMID, row.ResourceName); err != nil {
			logger.Warn("lead id mapping failed", "crmID", row.CRMID, "error", err)
		}

		if p.publisher != nil {
			record := map[string]any{
				"ExternalId__c": row.ResourceName,
				"CrmId__c":      row.CRMID,
				"ClickId__c":    row.ClickID,
				"Status__c":     row.Status,
			}
			if _, err := p.publisher.Publish(ctx, p.cfg.LeadTopic, record); err != nil {
				logger.Error("lead upsert publish failed", "externalID", row.ResourceName, "error", err)
			}
		}

		processed++
		telemetry.RowsPulled.WithLabelValues(store.ResourceLead).Inc()

		if row.UpdatedAt.After(watermark) {
			watermark = row.UpdatedAt
		}
	}

	p.advance(ctx, store.ResourceLead, since, watermark)

	logger.Info("lead delta pull completed", "processed", processed, "since", since, "watermark", watermark)
	return processed, nil
}

// queryWithRetry wraps the remote delta call with bounded backoff; errors
// that survive the retries are surfaced for scheduler-level retry.
func queryWithRetry[T any](ctx context.Context, kind string, fn func(ctx context.Context) ([]T, error)) ([]T, error) {
	return retry.DoWithData(
		func() ([]T, error) {
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("delta query failed, retrying", "resource", kind, "attempt", n+1, "error", err)
		}),
	)
}

func (p *Puller) advance(ctx context.Context, resource string, since, watermark time.Time) {
	if !watermark.After(since) {
		return
	}

	advanced, err := p.store.AdvanceCursor(ctx, resource, watermark)
	if err != nil {
		logger.Error("cursor advance failed", "resource", resource, "error", err)
		return
	}

	logger.Debug("cursor advanced", "resource", resource, "watermark", watermark, "advanced", advanced)
}
