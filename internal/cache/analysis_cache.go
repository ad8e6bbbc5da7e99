// Package cache stores validated analysis results in Redis so that an
// identical prompt and image are answered without calling the provider.
package cache

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/agriplan/internal/config"
)

// AnalysisCache is a Redis-backed store of raw result documents.  A nil
// *AnalysisCache, or one built without a client, behaves as an always-empty
// cache so callers never need to check whether Redis is available.
type AnalysisCache struct {
    rdb      redis.Cmdable
    prefix   string
    ttl      time.Duration
    maxBytes int
}

// NewAnalysisCache returns nil when caching is disabled or rdb is nil.
func NewAnalysisCache(cfg config.CacheConfig, rdb *redis.Client) *AnalysisCache {
    if !cfg.Enabled || rdb == nil {
        return nil
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = time.Hour
    }
    prefix := cfg.Prefix
    if prefix == "" {
        prefix = "analysis"
    }
    return &AnalysisCache{rdb: rdb, prefix: prefix, ttl: ttl, maxBytes: cfg.MaxBytes}
}

// Key builds the Redis key for a payload digest.
func (c *AnalysisCache) Key(digest string) string {
    return fmt.Sprintf("%s:%s", c.prefix, digest)
}

// Get returns the cached document for digest.  A miss, a disabled cache and
// a Redis failure all report ok=false; only the last also returns an error
// (for logging).
func (c *AnalysisCache) Get(ctx context.Context, digest string) ([]byte, bool, error) {
    if c == nil {
        return nil, false, nil
    }
    bs, err := c.rdb.Get(ctx, c.Key(digest)).Bytes()
    if errors.Is(err, redis.Nil) {
        return nil, false, nil
    }
    if err != nil {
        return nil, false, err
    }
    return bs, len(bs) > 0, nil
}

// Set stores doc under digest.  Documents larger than the configured limit
// are skipped rather than truncated.
func (c *AnalysisCache) Set(ctx context.Context, digest string, doc []byte) error {
    if c == nil || len(doc) == 0 {
        return nil
    }
    if c.maxBytes > 0 && len(doc) > c.maxBytes {
        return nil
    }
    return c.rdb.SetEx(ctx, c.Key(digest), doc, c.ttl).Err()
}
