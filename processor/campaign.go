package processor

import (
	"encoding/json"
	"fmt"

	"github.com/adflowio/bridge/ads"
	"github.com/adflowio/bridge/store"
)

// supportedUpdateFields is the closed set of campaign fields a full update
// may touch. Unknown fields are rejected instead of being reflected onto
// the remote object.
var supportedUpdateFields = map[string]struct{}{
	"name":          {},
	"status":        {},
	"start_date":    {},
	"end_date":      {},
	"budget_micros": {},
}

// buildCampaignOperation translates one claimed entry into a remote
// campaign mutation. Errors here are terminal for the entry: unsupported
// action or malformed payload, never a transient condition.
func buildCampaignOperation(entry store.OutboxEntry) (ads.CampaignOperation, error) {
	payload, err := parsePayload(entry.Payload)
	if err != nil {
		return ads.CampaignOperation{}, fmt.Errorf("malformed payload: %w", err)
	}

	switch entry.Action {
	case store.ActionCreate:
		return buildCreate(payload), nil

	case store.ActionRemove:
		resource, err := resourceID(payload)
		if err != nil {
			return ads.CampaignOperation{}, err
		}
		return ads.CampaignOperation{Remove: resource}, nil

	case store.ActionPause:
		return buildStatusUpdate(payload, ads.StatusPaused)

	case store.ActionEnable:
		return buildStatusUpdate(payload, ads.StatusEnabled)

	case store.ActionUpdate:
		return buildUpdate(payload)

	default:
		return ads.CampaignOperation{}, fmt.Errorf("unsupported action: %s", entry.Action)
	}
}

func buildCreate(payload map[string]any) ads.CampaignOperation {
	name := stringField(payload, "Name", "name")
	if name == "" {
		name = "New Campaign"
	}

	channelType := stringField(payload, "channel_type", "advertising_channel_type")
	if channelType == "" {
		channelType = ads.ChannelTypeSearch
	}

	return ads.CampaignOperation{
		Create: &ads.Campaign{
			Name:        name,
			ChannelType: channelType,
		},
	}
}

func buildStatusUpdate(payload map[string]any, status string) (ads.CampaignOperation, error) {
	resource, err := resourceID(payload)
	if err != nil {
		return ads.CampaignOperation{}, err
	}

	return ads.CampaignOperation{
		Update: &ads.Campaign{
			ResourceName: resource,
			Status:       status,
		},
		UpdateMask: []string{"status"},
	}, nil
}

func buildUpdate(payload map[string]any) (ads.CampaignOperation, error) {
	resource, err := resourceID(payload)
	if err != nil {
		return ads.CampaignOperation{}, err
	}

	fields, _ := payload["fields"].(map[string]any)
	if len(fields) == 0 {
		return ads.CampaignOperation{}, fmt.Errorf("update payload carries no fields")
	}

	campaign := &ads.Campaign{ResourceName: resource}
	mask := make([]string, 0, len(fields))

	for field, value := range fields {
		if _, ok := supportedUpdateFields[field]; !ok {
			return ads.CampaignOperation{}, fmt.Errorf("unsupported update field: %q", field)
		}

		switch field {
		case "name":
			campaign.Name, _ = value.(string)
		case "status":
			campaign.Status, _ = value.(string)
		case "start_date":
			campaign.StartDate, _ = value.(string)
		case "end_date":
			campaign.EndDate, _ = value.(string)
		case "budget_micros":
			if micros, ok := value.(float64); ok {
				campaign.BudgetMicros = int64(micros)
			}
		}
		mask = append(mask, field)
	}

	return ads.CampaignOperation{Update: campaign, UpdateMask: mask}, nil
}

func resourceID(payload map[string]any) (string, error) {
	resource := stringField(payload, "resource_id", "resource_name")
	if resource == "" {
		return "", fmt.Errorf("payload carries no resource identifier")
	}
	return resource, nil
}

func parsePayload(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
