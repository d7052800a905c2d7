package stream

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/adflowio/bridge/config"
	"github.com/adflowio/bridge/internal/replay"
	"github.com/adflowio/bridge/logger"
	"github.com/adflowio/bridge/store"
	"github.com/adflowio/bridge/telemetry"
)

// IngestStore is the slice of the store the subscriber needs: resume-point
// lookup and the atomic persist-route-advance unit.
type IngestStore interface {
	ReplayToken(ctx context.Context, topic string) (replay.Token, error)
	IngestEvent(ctx context.Context, ev store.IngestedEvent, entry *store.OutboxEntry, token replay.Token) error
}

// RouteFunc turns a decoded change event into zero or one outbox entry.
type RouteFunc func(ev DecodedEvent) (*store.OutboxEntry, bool)

// Subscriber is the long-lived consumer of one topic. Exactly one active
// subscriber per topic: two subscribers sharing a replay state row would
// race on cursor advances. The stream connection is effectively exclusive
// per credential, so this is an operational invariant, not a lock.
type Subscriber struct {
	client  Client
	decoder Decoder
	schemas *SchemaCache
	store   IngestStore
	route   RouteFunc
	topic   config.TopicConfig
}

func NewSubscriber(client Client, decoder Decoder, st IngestStore, route RouteFunc, topic config.TopicConfig) *Subscriber {
	return &Subscriber{
		client:  client,
		decoder: decoder,
		schemas: NewSchemaCache(client.Schema),
		store:   st,
		route:   route,
		topic:   topic,
	}
}

// Run consumes the topic until the stream ends or the context is cancelled,
// returning the number of events durably processed. A stored replay token
// resumes from that exact position; otherwise the configured preset is
// used. Each event is persisted, routed and its token advanced in one
// transaction — if that unit fails, Run returns without advancing and the
// event is redelivered on the next resume.
func (s *Subscriber) Run(ctx context.Context) (int, error) {
	token, err := s.store.ReplayToken(ctx, s.topic.Name)
	if err != nil {
		return 0, fmt.Errorf("load replay state: %w", err)
	}

	preset := ReplayPreset(s.topic.ReplayPreset)
	if !token.IsZero() {
		preset = ReplayCustom
	}

	reader, err := s.client.Subscribe(ctx, s.topic.Name, preset, token)
	if err != nil {
		return 0, fmt.Errorf("subscribe %s: %w", s.topic.Name, err)
	}

	logger.Info("subscriber started", "topic", s.topic.Name, "preset", preset, "resumeToken", token)

	received := 0
	for {
		raw, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			logger.Info("stream ended", "topic", s.topic.Name, "received", received)
			return received, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return received, ctx.Err()
			}
			return received, fmt.Errorf("stream receive: %w", err)
		}

		ev := s.decode(ctx, raw)

		var entry *store.OutboxEntry
		if s.topic.ChangeData && !ev.Degraded && s.route != nil {
			if routed, ok := s.route(ev); ok {
				entry = routed
			}
		}

		payload, err := json.Marshal(ev.Fields)
		if err != nil {
			return received, fmt.Errorf("event payload marshal: %w", err)
		}

		ingested := store.IngestedEvent{
			Topic:          s.topic.Name,
			SourceRecordID: ev.RecordID,
			Payload:        payload,
			ReceivedAt:     time.Now().UTC(),
		}

		if err := s.store.IngestEvent(ctx, ingested, entry, raw.ReplayToken); err != nil {
			return received, fmt.Errorf("ingest event: %w", err)
		}

		telemetry.EventsReceived.WithLabelValues(s.topic.Name).Inc()
		received++

		logger.Debug("event processed", "topic", s.topic.Name, "recordID", ev.RecordID,
			"replayToken", raw.ReplayToken, "routed", entry != nil, "degraded", ev.Degraded)
	}
}

// decode resolves the schema and decodes the payload. Decode failures never
// fail the stream: a degraded record carrying the raw bytes and schema id
// is emitted instead.
func (s *Subscriber) decode(ctx context.Context, raw *RawEvent) DecodedEvent {
	ev := DecodedEvent{
		Topic:       s.topic.Name,
		SchemaID:    raw.SchemaID,
		ReplayToken: raw.ReplayToken,
	}

	schemaJSON, err := s.schemas.Get(ctx, raw.SchemaID)
	var fields map[string]any
	if err == nil {
		fields, err = s.decoder.Decode(schemaJSON, raw.Payload)
	}

	if err != nil {
		logger.Warn("event decode failed, emitting degraded record",
			"topic", s.topic.Name, "schemaID", raw.SchemaID, "error", err)
		telemetry.EventsDegraded.WithLabelValues(s.topic.Name).Inc()

		ev.Degraded = true
		ev.Fields = map[string]any{
			"_raw":       hex.EncodeToString(raw.Payload),
			"_schema_id": raw.SchemaID,
		}
		return ev
	}

	ev.Fields = fields
	ev.RecordID = extractRecordID(fields)
	return ev
}

func extractRecordID(fields map[string]any) string {
	if id, ok := fields["Id"].(string); ok && id != "" {
		return id
	}

	if header, ok := (DecodedEvent{Fields: fields}).ChangeHeader(); ok && len(header.RecordIDs) > 0 {
		return header.RecordIDs[0]
	}

	return ""
}
