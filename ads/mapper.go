package ads

import (
	"github.com/adflowio/bridge/store"
)

// CampaignSnapshot maps a remote campaign row onto its local mirror record.
func CampaignSnapshot(c Campaign) store.CampaignSnapshot {
	return store.CampaignSnapshot{
		ExternalID:        c.ResourceName,
		CampaignID:        c.ID,
		Name:              c.Name,
		Status:            c.Status,
		ChannelType:       c.ChannelType,
		BudgetMicros:      c.BudgetMicros,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		ExternalUpdatedAt: c.UpdatedAt.UTC(),
	}
}

// LeadSnapshot maps a remote lead row onto its local mirror record.
func LeadSnapshot(l Lead) store.LeadSnapshot {
	return store.LeadSnapshot{
		ExternalID:        l.ResourceName,
		CRMID:             l.CRMID,
		ClickID:           l.ClickID,
		Status:            l.Status,
		EmailSHA256:       l.EmailSHA256,
		PhoneSHA256:       l.PhoneSHA256,
		ExternalUpdatedAt: l.UpdatedAt.UTC(),
	}
}
