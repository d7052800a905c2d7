// Package ads defines the surface of the remote advertising API the bridge
// reads deltas from and pushes mutations to. The concrete transport (auth,
// wire protocol) lives in the vendor SDK behind the Client interface.
package ads

import (
	"context"
	"errors"
	"time"
)

const (
	StatusEnabled = "ENABLED"
	StatusPaused  = "PAUSED"
	StatusRemoved = "REMOVED"

	ChannelTypeSearch = "SEARCH"
)

var ErrInvalidOperation = errors.New("invalid campaign operation")

// Campaign is one row of the remote campaign resource.
type Campaign struct {
	ResourceName string
	ID           int64
	Name         string
	Status       string
	ChannelType  string
	BudgetMicros int64
	StartDate    string
	EndDate      string
	UpdatedAt    time.Time
}

// Lead is one row of the remote lead-form resource.
type Lead struct {
	ResourceName string
	CRMID        string
	ClickID      string
	Status       string
	EmailSHA256  string
	PhoneSHA256  string
	UpdatedAt    time.Time
}

// CampaignOperation is one item of a batched campaign mutation. Exactly one
// of Create, Update or Remove must be set; UpdateMask names the fields an
// update touches.
type CampaignOperation struct {
	Create     *Campaign
	Update     *Campaign
	UpdateMask []string
	Remove     string
}

func (op CampaignOperation) Validate() error {
	set := 0
	if op.Create != nil {
		set++
	}
	if op.Update != nil {
		set++
	}
	if op.Remove != "" {
		set++
	}
	if set != 1 {
		return ErrInvalidOperation
	}
	if op.Update != nil && len(op.UpdateMask) == 0 {
		return errors.New("update operation requires a field mask")
	}
	return nil
}

// Conversion is one click-keyed offline conversion upload item.
type Conversion struct {
	ClickID          string
	ConversionAction string
	Value            float64
	CurrencyCode     string
	OccurredAt       time.Time
}

// ContactMatch is one hashed-identifier contact matching upload item.
type ContactMatch struct {
	EmailSHA256 string
	PhoneSHA256 string
}

// ItemError attributes a failure inside a batch to one operation by its
// position in the request.
type ItemError struct {
	Index   int
	Message string
}

// BatchError is the partial-failure report of a batched call. When the API
// cannot attribute failures per item, Items is empty and only Message is
// set.
type BatchError struct {
	Message string
	Items   []ItemError
}

// MutateResult is the outcome of a batched mutation call. PartialFailure is
// nil on full success.
type MutateResult struct {
	Results        []string
	PartialFailure *BatchError
}

// Client is the remote advertising API. All calls may fail transiently
// (network, auth, rate limits); callers surface those errors for
// scheduler-level retry.
type Client interface {
	CampaignsModifiedSince(ctx context.Context, since time.Time) ([]Campaign, error)
	LeadsModifiedSince(ctx context.Context, since time.Time) ([]Lead, error)
	MutateCampaigns(ctx context.Context, ops []CampaignOperation, partialFailure bool) (*MutateResult, error)
	UploadConversions(ctx context.Context, conversions []Conversion) (*MutateResult, error)
	UploadContacts(ctx context.Context, matches []ContactMatch) (*MutateResult, error)
}
