package stream

import (
	"context"
	"fmt"

	"github.com/adflowio/bridge/internal/replay"
	"github.com/adflowio/bridge/logger"
)

// Publisher sends platform events back to the CRM, encoding records against
// the topic's current schema. The returned replay token is the delivery
// acknowledgment.
type Publisher struct {
	client  Client
	decoder Decoder
	schemas *SchemaCache
}

func NewPublisher(client Client, decoder Decoder) *Publisher {
	return &Publisher{
		client:  client,
		decoder: decoder,
		schemas: NewSchemaCache(client.Schema),
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, record map[string]any) (replay.Token, error) {
	schemaID, err := p.client.TopicSchemaID(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("topic schema lookup %s: %w", topic, err)
	}

	schemaJSON, err := p.schemas.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}

	payload, err := p.decoder.Encode(schemaJSON, record)
	if err != nil {
		return nil, fmt.Errorf("event encode %s: %w", topic, err)
	}

	token, err := p.client.Publish(ctx, topic, schemaID, payload)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", topic, err)
	}

	logger.Debug("platform event published", "topic", topic, "replayToken", token)
	return token, nil
}
