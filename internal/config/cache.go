package config

import "time"

// CacheConfig defines settings for the analysis result cache.  When Enabled
// is false or no Redis client is configured, every analysis goes to the
// provider.  TTL defines the lifetime of cache entries, Prefix namespaces the
// keys and MaxBytes caps the size of a stored result.
type CacheConfig struct {
    Enabled  bool
    TTL      time.Duration
    Prefix   string
    MaxBytes int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.
func LoadCacheConfig() CacheConfig {
    c := CacheConfig{
        Enabled:  envBool("CACHE_ENABLED", true),
        TTL:      envDur("CACHE_TTL", 24*time.Hour),
        Prefix:   envStr("CACHE_PREFIX", "analysis"),
        MaxBytes: envInt("CACHE_MAX_BYTES", 1<<20),
    }
    if c.TTL <= 0 {
        c.TTL = time.Hour
    }
    return c
}
