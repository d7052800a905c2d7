package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adflowio/bridge/ads"
	"github.com/adflowio/bridge/store"
)

type fakeStore struct {
	batches  [][]store.OutboxEntry
	claims   int
	done     []int64
	errored  map[int64]string
	mappings map[string]string
}

func newFakeStore(batches ...[]store.OutboxEntry) *fakeStore {
	return &fakeStore{
		batches:  batches,
		errored:  map[int64]string{},
		mappings: map[string]string{},
	}
}

func (f *fakeStore) ClaimPending(_ context.Context, _ string, _ int, _ string) ([]store.OutboxEntry, error) {
	f.claims++
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeStore) MarkDone(_ context.Context, ids []int64) error {
	f.done = append(f.done, ids...)
	return nil
}

func (f *fakeStore) MarkError(_ context.Context, ids []int64, msg string) error {
	for _, id := range ids {
		f.errored[id] = msg
	}
	return nil
}

func (f *fakeStore) MapExternalID(_ context.Context, _ string, localID, remoteID string) error {
	f.mappings[localID] = remoteID
	return nil
}

type fakeAds struct {
	mutate      func(ops []ads.CampaignOperation) (*ads.MutateResult, error)
	conversions func(items []ads.Conversion) (*ads.MutateResult, error)
	contacts    func(items []ads.ContactMatch) (*ads.MutateResult, error)

	mutateOps       [][]ads.CampaignOperation
	conversionItems [][]ads.Conversion
	contactItems    [][]ads.ContactMatch
}

func (f *fakeAds) CampaignsModifiedSince(context.Context, time.Time) ([]ads.Campaign, error) {
	return nil, nil
}

func (f *fakeAds) LeadsModifiedSince(context.Context, time.Time) ([]ads.Lead, error) {
	return nil, nil
}

func (f *fakeAds) MutateCampaigns(_ context.Context, ops []ads.CampaignOperation, _ bool) (*ads.MutateResult, error) {
	f.mutateOps = append(f.mutateOps, ops)
	if f.mutate != nil {
		return f.mutate(ops)
	}
	return fullSuccess(len(ops)), nil
}

func (f *fakeAds) UploadConversions(_ context.Context, items []ads.Conversion) (*ads.MutateResult, error) {
	f.conversionItems = append(f.conversionItems, items)
	if f.conversions != nil {
		return f.conversions(items)
	}
	return fullSuccess(len(items)), nil
}

func (f *fakeAds) UploadContacts(_ context.Context, items []ads.ContactMatch) (*ads.MutateResult, error) {
	f.contactItems = append(f.contactItems, items)
	if f.contacts != nil {
		return f.contacts(items)
	}
	return fullSuccess(len(items)), nil
}

func fullSuccess(n int) *ads.MutateResult {
	results := make([]string, n)
	for i := range results {
		results[i] = "customers/1/campaigns/100"
	}
	return &ads.MutateResult{Results: results}
}

func entry(id int64, resource string, action store.Action, payload map[string]any) store.OutboxEntry {
	raw, _ := json.Marshal(payload)
	return store.OutboxEntry{
		ID:       id,
		Resource: resource,
		Action:   action,
		Payload:  raw,
		Status:   store.StatusProcessing,
	}
}

func TestDrain_CampaignRemove(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "X"}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	require.Len(t, client.mutateOps, 1)
	require.Len(t, client.mutateOps[0], 1)
	assert.Equal(t, "X", client.mutateOps[0][0].Remove)

	assert.Equal(t, []int64{1}, st.done)
	assert.Empty(t, st.errored)
}

func TestDrain_PartialFailureIsolation(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "A"}),
		entry(2, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "B"}),
		entry(3, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "C"}),
	})
	client := &fakeAds{
		mutate: func(ops []ads.CampaignOperation) (*ads.MutateResult, error) {
			return &ads.MutateResult{
				Results: make([]string, len(ops)),
				PartialFailure: &ads.BatchError{
					Message: "1 operation failed",
					Items:   []ads.ItemError{{Index: 1, Message: "campaign not found"}},
				},
			}, nil
		},
	}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	assert.ElementsMatch(t, []int64{1, 3}, st.done)
	assert.Equal(t, "campaign not found", st.errored[2])
}

func TestDrain_PartialFailureWithoutAttribution(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "A"}),
		entry(2, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "B"}),
	})
	client := &fakeAds{
		mutate: func(ops []ads.CampaignOperation) (*ads.MutateResult, error) {
			return &ads.MutateResult{
				PartialFailure: &ads.BatchError{Message: "quota exceeded"},
			}, nil
		},
	}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Zero(t, processed)

	// Without per-item attribution nothing is assumed to have succeeded.
	assert.Empty(t, st.done)
	assert.Equal(t, "quota exceeded", st.errored[1])
	assert.Equal(t, "quota exceeded", st.errored[2])
}

func TestDrain_MalformedEntryDoesNotBlockBatch(t *testing.T) {
	bad := store.OutboxEntry{
		ID:       1,
		Resource: store.ResourceCampaign,
		Action:   store.ActionRemove,
		Payload:  json.RawMessage(`{not json`),
	}
	st := newFakeStore([]store.OutboxEntry{
		bad,
		entry(2, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "B"}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	assert.Equal(t, []int64{2}, st.done)
	assert.Contains(t, st.errored[1], "malformed payload")

	// The malformed entry never reached the remote call.
	require.Len(t, client.mutateOps, 1)
	assert.Len(t, client.mutateOps[0], 1)
}

func TestDrain_MissingResourceIdentifier(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionRemove, map[string]any{"Name": "no id"}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Zero(t, processed)

	assert.Contains(t, st.errored[1], "resource identifier")
	assert.Empty(t, client.mutateOps)
}

func TestDrain_HardFailureMarksBatchAndReturnsError(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "A"}),
		entry(2, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "B"}),
	})
	client := &fakeAds{
		mutate: func([]ads.CampaignOperation) (*ads.MutateResult, error) {
			return nil, errors.New("deadline exceeded")
		},
	}
	p := New(st, client, 10)

	_, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.ErrorContains(t, err, "deadline exceeded")

	assert.Empty(t, st.done)
	assert.Equal(t, "deadline exceeded", st.errored[1])
	assert.Equal(t, "deadline exceeded", st.errored[2])
}

func TestDrain_CreateRecordsIdentityMapping(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionCreate, map[string]any{"Id": "701xx1", "Name": "Spring"}),
	})
	client := &fakeAds{
		mutate: func(ops []ads.CampaignOperation) (*ads.MutateResult, error) {
			return &ads.MutateResult{Results: []string{"customers/1/campaigns/555"}}, nil
		},
	}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	assert.Equal(t, "customers/1/campaigns/555", st.mappings["701xx1"])
}

func TestDrain_CampaignUpdateBuildsMask(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionUpdate, map[string]any{
			"resource_id": "X",
			"fields":      map[string]any{"name": "Renamed", "budget_micros": float64(5000000)},
		}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	require.Len(t, client.mutateOps, 1)
	op := client.mutateOps[0][0]
	require.NotNil(t, op.Update)
	assert.Equal(t, "X", op.Update.ResourceName)
	assert.Equal(t, "Renamed", op.Update.Name)
	assert.Equal(t, int64(5000000), op.Update.BudgetMicros)
	assert.ElementsMatch(t, []string{"name", "budget_micros"}, op.UpdateMask)
}

func TestDrain_CampaignUpdateRejectsUnknownField(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionUpdate, map[string]any{
			"resource_id": "X",
			"fields":      map[string]any{"bidding_strategy": "MANUAL_CPC"},
		}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Zero(t, processed)

	assert.Contains(t, st.errored[1], "unsupported update field")
	assert.Empty(t, client.mutateOps)
}

func TestDrain_PauseAndEnableUseStatusMask(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceCampaign, store.ActionPause, map[string]any{"resource_id": "A"}),
		entry(2, store.ResourceCampaign, store.ActionEnable, map[string]any{"resource_id": "B"}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	require.Len(t, client.mutateOps, 1)
	ops := client.mutateOps[0]
	require.Len(t, ops, 2)

	assert.Equal(t, ads.StatusPaused, ops[0].Update.Status)
	assert.Equal(t, ads.StatusEnabled, ops[1].Update.Status)
	assert.Equal(t, []string{"status"}, ops[0].UpdateMask)
	assert.Equal(t, []string{"status"}, ops[1].UpdateMask)
}

func TestDrain_LeadTwoPathSplit(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceLead, store.ActionCreate, map[string]any{"gclid": "click-1", "conversion_value": 12.5}),
		entry(2, store.ResourceLead, store.ActionCreate, map[string]any{"email_sha256": "abc123"}),
		entry(3, store.ResourceLead, store.ActionCreate, map[string]any{"Name": "no identifiers"}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	processed, err := p.Drain(context.Background(), store.ResourceLead)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	require.Len(t, client.conversionItems, 1)
	require.Len(t, client.conversionItems[0], 1)
	assert.Equal(t, "click-1", client.conversionItems[0][0].ClickID)
	assert.Equal(t, 12.5, client.conversionItems[0][0].Value)
	assert.Equal(t, "USD", client.conversionItems[0][0].CurrencyCode)

	require.Len(t, client.contactItems, 1)
	require.Len(t, client.contactItems[0], 1)
	assert.Equal(t, "abc123", client.contactItems[0][0].EmailSHA256)

	assert.ElementsMatch(t, []int64{1, 2}, st.done)
	assert.Contains(t, st.errored[3], "no applicable remote operation")
}

func TestDrain_LeadConversionTimeParsed(t *testing.T) {
	occurred := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceLead, store.ActionCreate, map[string]any{
			"gclid":           "click-1",
			"conversion_time": occurred.Format(time.RFC3339),
			"currency_code":   "EUR",
		}),
	})
	client := &fakeAds{}
	p := New(st, client, 10)

	_, err := p.Drain(context.Background(), store.ResourceLead)
	require.NoError(t, err)

	require.Len(t, client.conversionItems, 1)
	conv := client.conversionItems[0][0]
	assert.True(t, conv.OccurredAt.Equal(occurred))
	assert.Equal(t, "EUR", conv.CurrencyCode)
}

func TestDrain_LeadHardFailureFinalizesWholeClaimedBatch(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceLead, store.ActionCreate, map[string]any{"gclid": "click-1"}),
		entry(2, store.ResourceLead, store.ActionCreate, map[string]any{"email_sha256": "abc123"}),
	})
	client := &fakeAds{
		conversions: func([]ads.Conversion) (*ads.MutateResult, error) {
			return nil, errors.New("deadline exceeded")
		},
	}
	p := New(st, client, 10)

	_, err := p.Drain(context.Background(), store.ResourceLead)
	require.ErrorContains(t, err, "deadline exceeded")

	// The contact-path entry claimed alongside the failed conversion batch
	// is finalized too, never left in processing.
	assert.Empty(t, st.done)
	assert.Equal(t, "deadline exceeded", st.errored[1])
	assert.Equal(t, "deadline exceeded", st.errored[2])
	assert.Empty(t, client.contactItems)
}

func TestDrain_LeadHardFailureOnConversionPath(t *testing.T) {
	st := newFakeStore([]store.OutboxEntry{
		entry(1, store.ResourceLead, store.ActionCreate, map[string]any{"gclid": "click-1"}),
	})
	client := &fakeAds{
		conversions: func([]ads.Conversion) (*ads.MutateResult, error) {
			return nil, errors.New("upstream unavailable")
		},
	}
	p := New(st, client, 10)

	_, err := p.Drain(context.Background(), store.ResourceLead)
	require.ErrorContains(t, err, "upstream unavailable")
	assert.Equal(t, "upstream unavailable", st.errored[1])
}

func TestDrain_UnsupportedResourceKind(t *testing.T) {
	p := New(newFakeStore(), &fakeAds{}, 10)

	_, err := p.Drain(context.Background(), "invoice")
	assert.ErrorContains(t, err, "unsupported resource kind")
}

func TestDrain_LoopsUntilNoPendingRemain(t *testing.T) {
	st := newFakeStore(
		[]store.OutboxEntry{entry(1, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "A"})},
		[]store.OutboxEntry{entry(2, store.ResourceCampaign, store.ActionRemove, map[string]any{"resource_id": "B"})},
	)
	client := &fakeAds{}
	p := New(st, client, 1)

	processed, err := p.Drain(context.Background(), store.ResourceCampaign)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 3, st.claims)
	assert.ElementsMatch(t, []int64{1, 2}, st.done)
}
