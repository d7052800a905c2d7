// Package router maps decoded change-data-capture events onto outbox
// entries. Routing is a pure function: no I/O, deterministic for a fixed
// input.
package router

import (
	"encoding/json"
	"strings"

	"github.com/adflowio/bridge/store"
	"github.com/adflowio/bridge/stream"
)

// statusField is the entity field whose change triggers the single-field
// mutation shortcut.
const statusField = "Status"

var entityResources = map[string]string{
	"Campaign": store.ResourceCampaign,
	"Lead":     store.ResourceLead,
}

// Route converts a decoded event into at most one outbox entry. Events for
// unrecognized entities and UNDELETE changes are dropped. The stored
// payload is the full decoded event body so later stages can re-derive
// whatever fields they need without re-fetching.
func Route(ev stream.DecodedEvent) (*store.OutboxEntry, bool) {
	header, ok := ev.ChangeHeader()
	if !ok {
		return nil, false
	}

	resource, ok := entityResources[header.Entity]
	if !ok {
		return nil, false
	}

	var action store.Action
	switch header.ChangeType {
	case "CREATE":
		action = store.ActionCreate
	case "DELETE":
		action = store.ActionRemove
	case "UPDATE":
		action = updateAction(header, ev.Fields)
	default:
		// UNDELETE has no remote counterpart; dropped.
		return nil, false
	}

	payload, err := json.Marshal(ev.Fields)
	if err != nil {
		return nil, false
	}

	return &store.OutboxEntry{
		Resource: resource,
		Action:   action,
		Payload:  payload,
		Status:   store.StatusPending,
	}, true
}

// updateAction picks the status-specific shortcut when the update touched
// the status field and the new value maps to a single-field mutation;
// everything else is a full update.
func updateAction(header stream.ChangeHeader, fields map[string]any) store.Action {
	changedStatus := false
	for _, field := range header.ChangedFields {
		if field == statusField {
			changedStatus = true
			break
		}
	}
	if !changedStatus {
		return store.ActionUpdate
	}

	status, _ := fields[statusField].(string)
	switch strings.ToUpper(status) {
	case "PAUSED":
		return store.ActionPause
	case "ENABLED", "ACTIVE":
		return store.ActionEnable
	default:
		return store.ActionUpdate
	}
}
