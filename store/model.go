package store

import (
	"encoding/json"
	"time"
)

const (
	ResourceCampaign = "campaign"
	ResourceLead     = "lead"
)

// Action is the remote mutation intent carried by an outbox entry. The set
// is closed; the processor rejects anything else.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
	ActionPause  Action = "pause"
	ActionEnable Action = "enable"
)

// Status is the outbox entry lifecycle state. done and error are terminal;
// an entry never leaves a terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// OutboxEntry is a durably queued intention to mutate the remote
// advertising platform.
type OutboxEntry struct {
	ID        int64
	Resource  string
	Action    Action
	Payload   json.RawMessage
	Status    Status
	Error     string
	ClaimedBy string
	ClaimedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IngestedEvent is an append-only record of a received stream event.
// Duplicates are expected under at-least-once redelivery.
type IngestedEvent struct {
	Topic          string
	SourceRecordID string
	Payload        json.RawMessage
	ReceivedAt     time.Time
}

// CampaignSnapshot mirrors the last-known remote state of one campaign.
// It is not a source of truth; only the puller writes it.
type CampaignSnapshot struct {
	ExternalID        string
	CampaignID        int64
	Name              string
	Status            string
	ChannelType       string
	BudgetMicros      int64
	StartDate         string
	EndDate           string
	ExternalUpdatedAt time.Time
	LastSyncedAt      time.Time
}

// LeadSnapshot mirrors the last-known remote state of one lead.
type LeadSnapshot struct {
	ExternalID        string
	CRMID             string
	ClickID           string
	Status            string
	EmailSHA256       string
	PhoneSHA256       string
	ExternalUpdatedAt time.Time
	LastSyncedAt      time.Time
}
