package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/amaan667/servio-fusion/pkg/metrics"
	"github.com/amaan667/servio-fusion/pkg/models"
)

const catalogKeyPrefix = "fusion:catalog:"

// CatalogCache is a read-through cache over the committed catalog snapshot.
// Entries are invalidated on every replace, so staleness is bounded by the
// TTL only when invalidation itself fails.
type CatalogCache struct {
	client *Client
	logger ectologger.Logger
	ttl    time.Duration
}

// NewCatalogCache creates a new CatalogCache
func NewCatalogCache(client *Client, ttl time.Duration, logger ectologger.Logger) *CatalogCache {
	return &CatalogCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func catalogKey(tenantID string) string {
	return catalogKeyPrefix + tenantID
}

// Get returns the cached snapshot for the tenant, or (nil, false) on a miss.
// Cache errors degrade to a miss.
func (c *CatalogCache) Get(ctx context.Context, tenantID string) ([]models.CatalogEntry, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, catalogKey(tenantID))
	if err != nil {
		if !IsNil(err) {
			c.logger.WithContext(ctx).WithError(err).Warn("Catalog cache read failed")
		}
		metrics.RecordCacheRead(false)
		return nil, false
	}

	var entries []models.CatalogEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Catalog cache entry is corrupt, dropping it")
		_ = c.client.Del(ctx, catalogKey(tenantID))
		metrics.RecordCacheRead(false)
		return nil, false
	}

	metrics.RecordCacheRead(true)
	return entries, true
}

// Set stores the snapshot for the tenant. Failures are logged and ignored.
func (c *CatalogCache) Set(ctx context.Context, tenantID string, entries []models.CatalogEntry) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to encode catalog for cache")
		return
	}

	if err := c.client.Set(ctx, catalogKey(tenantID), data, c.ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Catalog cache write failed")
	}
}

// Invalidate drops the tenant's cached snapshot
func (c *CatalogCache) Invalidate(ctx context.Context, tenantID string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Del(ctx, catalogKey(tenantID)); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Catalog cache invalidation failed")
	}
}
