// Package processor drains the outbox against the remote advertising API.
// Claims are short store transactions with skip-locked row selection, so
// any number of concurrent processor instances can drain the same kind;
// the remote batch call always happens outside the claim lock.
package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/adflowio/bridge/ads"
	"github.com/adflowio/bridge/logger"
	"github.com/adflowio/bridge/store"
	"github.com/adflowio/bridge/telemetry"
)

// Store is the slice of the persistent store the processor needs.
type Store interface {
	ClaimPending(ctx context.Context, resource string, limit int, claimedBy string) ([]store.OutboxEntry, error)
	MarkDone(ctx context.Context, ids []int64) error
	MarkError(ctx context.Context, ids []int64, msg string) error
	MapExternalID(ctx context.Context, kind, localID, remoteID string) error
}

type Processor struct {
	store     Store
	ads       ads.Client
	batchSize int
	claimID   string
}

func New(st Store, client ads.Client, batchSize int) *Processor {
	return &Processor{
		store:     st,
		ads:       client,
		batchSize: batchSize,
		claimID:   uuid.NewString(),
	}
}

// Drain claims and processes pending outbox entries for one resource kind
// until none remain, returning the number of entries that reached done. A
// hard remote-call failure finalizes the claimed batch as error and is
// returned so the surrounding scheduler can retry the drain.
func (p *Processor) Drain(ctx context.Context, resource string) (int, error) {
	switch resource {
	case store.ResourceCampaign:
		return p.drainCampaigns(ctx)
	case store.ResourceLead:
		return p.drainLeads(ctx)
	default:
		return 0, fmt.Errorf("unsupported resource kind: %s", resource)
	}
}

func (p *Processor) drainCampaigns(ctx context.Context) (int, error) {
	processed := 0

	for {
		entries, err := p.store.ClaimPending(ctx, store.ResourceCampaign, p.batchSize, p.claimID)
		if err != nil {
			return processed, fmt.Errorf("campaign claim: %w", err)
		}
		if len(entries) == 0 {
			return processed, nil
		}

		var ops []ads.CampaignOperation
		var submitted []store.OutboxEntry
		for _, entry := range entries {
			op, err := buildCampaignOperation(entry)
			if err == nil {
				err = op.Validate()
			}
			if err != nil {
				// One bad entry never blocks the rest of the batch.
				p.fail(ctx, store.ResourceCampaign, []int64{entry.ID}, err.Error())
				continue
			}
			ops = append(ops, op)
			submitted = append(submitted, entry)
		}
		if len(ops) == 0 {
			continue
		}

		result, err := p.ads.MutateCampaigns(ctx, ops, true)
		if err != nil {
			p.fail(ctx, store.ResourceCampaign, entryIDs(submitted), err.Error())
			return processed, fmt.Errorf("campaign mutate: %w", err)
		}

		processed += p.finalize(ctx, store.ResourceCampaign, submitted, result)
	}
}

// finalize applies the batch outcome to the submitted entries. Full success
// marks everything done. A partial failure with per-item attribution marks
// the reported items error and the rest done; without attribution the whole
// batch is conservatively marked error rather than guessing success.
func (p *Processor) finalize(ctx context.Context, resource string, submitted []store.OutboxEntry, result *ads.MutateResult) int {
	if result.PartialFailure == nil {
		if err := p.store.MarkDone(ctx, entryIDs(submitted)); err != nil {
			logger.Error("mark done failed", "resource", resource, "error", err)
			return 0
		}

		for i := range submitted {
			telemetry.OutboxFinalized.WithLabelValues(resource, string(store.StatusDone)).Inc()
			p.recordMapping(ctx, submitted[i], result, i)
		}
		return len(submitted)
	}

	if len(result.PartialFailure.Items) == 0 {
		p.fail(ctx, resource, entryIDs(submitted), result.PartialFailure.Message)
		return 0
	}

	failed := make(map[int]string, len(result.PartialFailure.Items))
	for _, item := range result.PartialFailure.Items {
		if item.Index >= 0 && item.Index < len(submitted) {
			failed[item.Index] = item.Message
		}
	}

	var doneIDs []int64
	done := 0
	for i, entry := range submitted {
		if msg, ok := failed[i]; ok {
			p.fail(ctx, resource, []int64{entry.ID}, msg)
			continue
		}
		doneIDs = append(doneIDs, entry.ID)
		done++
	}

	if err := p.store.MarkDone(ctx, doneIDs); err != nil {
		logger.Error("mark done failed", "resource", resource, "error", err)
		return 0
	}

	for i, entry := range submitted {
		if _, ok := failed[i]; ok {
			continue
		}
		telemetry.OutboxFinalized.WithLabelValues(resource, string(store.StatusDone)).Inc()
		p.recordMapping(ctx, entry, result, i)
	}

	return done
}

// recordMapping stores the CRM-to-remote identity correlation discovered
// when a create operation returns its new resource name.
func (p *Processor) recordMapping(ctx context.Context, entry store.OutboxEntry, result *ads.MutateResult, index int) {
	if entry.Action != store.ActionCreate || index >= len(result.Results) {
		return
	}

	payload, err := parsePayload(entry.Payload)
	if err != nil {
		return
	}

	localID := stringField(payload, "Id")
	if localID == "" {
		return
	}

	if err := p.store.MapExternalID(ctx, entry.Resource, localID, result.Results[index]); err != nil {
		logger.Warn("id mapping failed", "resource", entry.Resource, "localID", localID, "error", err)
	}
}

func (p *Processor) fail(ctx context.Context, resource string, ids []int64, msg string) {
	if err := p.store.MarkError(ctx, ids, msg); err != nil {
		logger.Error("mark error failed", "resource", resource, "ids", ids, "error", err)
		return
	}

	telemetry.OutboxFinalized.WithLabelValues(resource, string(store.StatusError)).Add(float64(len(ids)))
}

func entryIDs(entries []store.OutboxEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	return ids
}
