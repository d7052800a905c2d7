package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adflowio/bridge/ads"
	"github.com/adflowio/bridge/store"
)

const noLeadOperation = "no applicable remote operation: lead entry lacks both a click identifier and contact hashes"

// drainLeads runs two alternative build strategies per claimed batch: the
// conversion-upload path for entries carrying a click identifier, then the
// contact-matching path for whatever the first left unclaimed. Entries
// matching neither are finalized as error.
func (p *Processor) drainLeads(ctx context.Context) (int, error) {
	processed := 0

	for {
		entries, err := p.store.ClaimPending(ctx, store.ResourceLead, p.batchSize, p.claimID)
		if err != nil {
			return processed, fmt.Errorf("lead claim: %w", err)
		}
		if len(entries) == 0 {
			return processed, nil
		}

		var conversions []ads.Conversion
		var conversionEntries []store.OutboxEntry
		var remaining []store.OutboxEntry

		for _, entry := range entries {
			conv, ok, err := buildConversion(entry)
			if err != nil {
				p.fail(ctx, store.ResourceLead, []int64{entry.ID}, err.Error())
				continue
			}
			if !ok {
				remaining = append(remaining, entry)
				continue
			}
			conversions = append(conversions, conv)
			conversionEntries = append(conversionEntries, entry)
		}

		if len(conversions) > 0 {
			result, err := p.ads.UploadConversions(ctx, conversions)
			if err != nil {
				// A hard remote failure finalizes every claimed entry in
				// the batch, including those still waiting on the contact
				// path; nothing may stay in processing.
				p.fail(ctx, store.ResourceLead, entryIDs(conversionEntries), err.Error())
				p.fail(ctx, store.ResourceLead, entryIDs(remaining), err.Error())
				return processed, fmt.Errorf("conversion upload: %w", err)
			}
			processed += p.finalize(ctx, store.ResourceLead, conversionEntries, result)
		}

		var matches []ads.ContactMatch
		var matchEntries []store.OutboxEntry

		for _, entry := range remaining {
			match, ok := buildContactMatch(entry)
			if !ok {
				p.fail(ctx, store.ResourceLead, []int64{entry.ID}, noLeadOperation)
				continue
			}
			matches = append(matches, match)
			matchEntries = append(matchEntries, entry)
		}

		if len(matches) > 0 {
			result, err := p.ads.UploadContacts(ctx, matches)
			if err != nil {
				p.fail(ctx, store.ResourceLead, entryIDs(matchEntries), err.Error())
				return processed, fmt.Errorf("contact match upload: %w", err)
			}
			processed += p.finalize(ctx, store.ResourceLead, matchEntries, result)
		}
	}
}

// buildConversion returns ok=false when the entry carries no click
// identifier; an error only for a payload that cannot be parsed at all.
func buildConversion(entry store.OutboxEntry) (ads.Conversion, bool, error) {
	payload, err := parsePayload(entry.Payload)
	if err != nil {
		return ads.Conversion{}, false, fmt.Errorf("malformed payload: %w", err)
	}

	clickID := stringField(payload, "gclid", "click_id", "ClickId__c")
	if clickID == "" {
		return ads.Conversion{}, false, nil
	}

	conv := ads.Conversion{
		ClickID:          clickID,
		ConversionAction: stringField(payload, "conversion_action"),
		CurrencyCode:     stringField(payload, "currency_code"),
		OccurredAt:       time.Now().UTC(),
	}

	if conv.CurrencyCode == "" {
		conv.CurrencyCode = "USD"
	}

	if value, ok := payload["conversion_value"].(float64); ok {
		conv.Value = value
	}

	if occurred := stringField(payload, "conversion_time"); occurred != "" {
		if ts, err := time.Parse(time.RFC3339, occurred); err == nil {
			conv.OccurredAt = ts.UTC()
		}
	}

	return conv, true, nil
}

// buildContactMatch returns ok=false when the entry carries neither hashed
// identifier.
func buildContactMatch(entry store.OutboxEntry) (ads.ContactMatch, bool) {
	payload, err := parsePayload(entry.Payload)
	if err != nil {
		return ads.ContactMatch{}, false
	}

	match := ads.ContactMatch{
		EmailSHA256: stringField(payload, "email_sha256"),
		PhoneSHA256: stringField(payload, "phone_sha256"),
	}

	if match.EmailSHA256 == "" && match.PhoneSHA256 == "" {
		return ads.ContactMatch{}, false
	}

	return match, true
}
