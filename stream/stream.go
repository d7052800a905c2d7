// Package stream consumes and publishes CRM platform events. The transport
// and the schema-aware payload codec are external collaborators behind the
// Client and Decoder interfaces; this package owns resumption, schema
// caching and the durable ingest of received events.
package stream

import (
	"context"

	"github.com/adflowio/bridge/internal/replay"
)

// ReplayPreset selects where a subscription starts when no stored token
// exists.
type ReplayPreset string

const (
	ReplayLatest   ReplayPreset = "latest"
	ReplayEarliest ReplayPreset = "earliest"
	ReplayCustom   ReplayPreset = "custom"
)

// RawEvent is one undecoded event as delivered by the stream.
type RawEvent struct {
	SchemaID    string
	ReplayToken replay.Token
	Payload     []byte
}

// EventReader yields events from one subscription. Recv blocks until the
// next event, returns io.EOF when the stream ends, and honors the context
// passed to Subscribe.
type EventReader interface {
	Recv() (*RawEvent, error)
}

// Client is the CRM event bus. Schemas are immutable once published and may
// be cached indefinitely per id.
type Client interface {
	Subscribe(ctx context.Context, topic string, preset ReplayPreset, token replay.Token) (EventReader, error)
	Schema(ctx context.Context, schemaID string) (string, error)
	TopicSchemaID(ctx context.Context, topic string) (string, error)
	Publish(ctx context.Context, topic, schemaID string, payload []byte) (replay.Token, error)
}

// Decoder is the schema-aware payload codec, keyed by the writer schema
// fetched through Client.Schema.
type Decoder interface {
	Decode(schemaJSON string, payload []byte) (map[string]any, error)
	Encode(schemaJSON string, record map[string]any) ([]byte, error)
}

// DecodedEvent is one event after schema resolution. When decoding fails
// the event is degraded: Fields carries the raw bytes and schema id so the
// pipeline still observes that something happened.
type DecodedEvent struct {
	Topic       string
	SchemaID    string
	ReplayToken replay.Token
	RecordID    string
	Fields      map[string]any
	Degraded    bool
}

// ChangeHeader is the change-data-capture envelope header embedded in
// change events.
type ChangeHeader struct {
	Entity        string
	ChangeType    string
	ChangedFields []string
	RecordIDs     []string
}

// ChangeHeader extracts the CDC header, reporting false when the event does
// not carry one (non-CDC topics, degraded records).
func (e DecodedEvent) ChangeHeader() (ChangeHeader, bool) {
	raw, ok := e.Fields["ChangeEventHeader"].(map[string]any)
	if !ok {
		return ChangeHeader{}, false
	}

	header := ChangeHeader{}
	header.Entity, _ = raw["entityName"].(string)
	header.ChangeType, _ = raw["changeType"].(string)
	header.ChangedFields = toStrings(raw["changedFields"])
	header.RecordIDs = toStrings(raw["recordIds"])

	if header.Entity == "" || header.ChangeType == "" {
		return ChangeHeader{}, false
	}

	return header, true
}

func toStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if strs, ok := v.([]string); ok {
			return strs
		}
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
