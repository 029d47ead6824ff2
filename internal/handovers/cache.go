package handovers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ViewCache keeps recently read handovers for callers that accept a
// bounded staleness. Entries hold the unprojected handover.
type ViewCache interface {
	Get(ctx context.Context, id uuid.UUID) (*Handover, time.Time, bool)
	Set(ctx context.Context, h *Handover, at time.Time)
	Invalidate(ctx context.Context, id uuid.UUID)
}

type cachedHandover struct {
	Handover *Handover `json:"handover"`
	CachedAt time.Time `json:"cachedAt"`
}

// RedisViewCache stores entries as JSON with a TTL equal to the staleness cap.
type RedisViewCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisViewCache(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisViewCache {
	return &RedisViewCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisViewCache) key(id uuid.UUID) string {
	return c.prefix + ":handover:" + id.String()
}

func (c *RedisViewCache) Get(ctx context.Context, id uuid.UUID) (*Handover, time.Time, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Handover cache read failed", zap.String("handover_id", id.String()), zap.Error(err))
		}
		return nil, time.Time{}, false
	}
	var entry cachedHandover
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Handover == nil {
		return nil, time.Time{}, false
	}
	return entry.Handover, entry.CachedAt, true
}

func (c *RedisViewCache) Set(ctx context.Context, h *Handover, at time.Time) {
	raw, err := json.Marshal(cachedHandover{Handover: h, CachedAt: at})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(h.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Handover cache write failed", zap.String("handover_id", h.ID.String()), zap.Error(err))
	}
}

func (c *RedisViewCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		c.logger.Warn("Handover cache invalidation failed", zap.String("handover_id", id.String()), zap.Error(err))
	}
}

// MemoryViewCache is the single-process fallback when Redis is not configured.
type MemoryViewCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]cachedHandover
	ttl     time.Duration
}

func NewMemoryViewCache(ttl time.Duration) *MemoryViewCache {
	return &MemoryViewCache{entries: make(map[uuid.UUID]cachedHandover), ttl: ttl}
}

func (c *MemoryViewCache) Get(_ context.Context, id uuid.UUID) (*Handover, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || time.Since(entry.CachedAt) > c.ttl {
		return nil, time.Time{}, false
	}
	h := *entry.Handover
	h.Items = append([]HandoverItem(nil), entry.Handover.Items...)
	return &h, entry.CachedAt, true
}

func (c *MemoryViewCache) Set(_ context.Context, h *Handover, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *h
	stored.Items = append([]HandoverItem(nil), h.Items...)
	c.entries[h.ID] = cachedHandover{Handover: &stored, CachedAt: at}

	for id, e := range c.entries {
		if time.Since(e.CachedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
}

func (c *MemoryViewCache) Invalidate(_ context.Context, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}
