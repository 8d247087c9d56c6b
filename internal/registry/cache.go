package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"modelcore/internal/provider"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const defaultCacheTTL = 5 * time.Minute

// capabilityCache is a read-through cache over resolved model capabilities.
// Entries expire after a TTL so registry updates become visible without an
// explicit invalidation protocol.
type capabilityCache interface {
	Get(ctx context.Context, key string) (provider.ModelInfo, bool)
	Set(ctx context.Context, key string, info provider.ModelInfo)
}

type memoryCacheEntry struct {
	info      provider.ModelInfo
	expiresAt time.Time
}

// memoryCache is the in-process fallback used when no Redis address is
// configured. Suitable for single-instance deployments and tests.
type memoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryCacheEntry
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &memoryCache{ttl: ttl, entries: make(map[string]memoryCacheEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string) (provider.ModelInfo, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return provider.ModelInfo{}, false
	}
	return entry.info, true
}

func (c *memoryCache) Set(_ context.Context, key string, info provider.ModelInfo) {
	c.mu.Lock()
	c.entries[key] = memoryCacheEntry{info: info, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// redisCache shares capability lookups across instances. Cache failures are
// logged and treated as misses; Redis being down must not block resolution.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisCache(addr string, ttl time.Duration) *redisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *redisCache) Get(ctx context.Context, key string) (provider.ModelInfo, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).Debug("capability cache read failed")
		}
		return provider.ModelInfo{}, false
	}
	var info provider.ModelInfo
	if errDecode := json.Unmarshal(payload, &info); errDecode != nil {
		log.WithError(errDecode).Debug("capability cache entry corrupt")
		return provider.ModelInfo{}, false
	}
	return info, true
}

func (c *redisCache) Set(ctx context.Context, key string, info provider.ModelInfo) {
	payload, errEncode := json.Marshal(info)
	if errEncode != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.WithError(err).Debug("capability cache write failed")
	}
}
