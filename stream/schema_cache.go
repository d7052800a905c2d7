package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/avast/retry-go/v4"

	"github.com/adflowio/bridge/logger"
)

// SchemaFetcher resolves a schema id to its schema document via an external
// call.
type SchemaFetcher func(ctx context.Context, schemaID string) (string, error)

// SchemaCache caches schema documents per schema id for the lifetime of one
// subscriber. Schemas are immutable once published, so entries are never
// invalidated.
type SchemaCache struct {
	fetch SchemaFetcher
	cache map[string]string
	mu    sync.RWMutex
}

func NewSchemaCache(fetch SchemaFetcher) *SchemaCache {
	return &SchemaCache{
		fetch: fetch,
		cache: make(map[string]string, 16),
	}
}

func (c *SchemaCache) Get(ctx context.Context, schemaID string) (string, error) {
	c.mu.RLock()
	schema, exists := c.cache[schemaID]
	c.mu.RUnlock()

	if exists {
		return schema, nil
	}

	fetched, err := retry.DoWithData(
		func() (string, error) {
			return c.fetch(ctx, schemaID)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("schema fetch failed, retrying", "schemaID", schemaID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("schema fetch %s: %w", schemaID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if schema, exists := c.cache[schemaID]; exists {
		return schema, nil
	}

	c.cache[schemaID] = fetched
	return fetched, nil
}

func (c *SchemaCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
