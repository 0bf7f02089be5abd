package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ppiankov/schemetrust/internal/model"
)

// Cache defines the interface for caching provider responses and read models
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a namespaced cache key from its parts
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "schemetrust:v1:" + hex.EncodeToString(h.Sum(nil))
}

// New builds the cache backend named in the configuration.
// A disabled cache is a no-op.
func New(cfg model.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.TTL, 10*time.Minute), nil
	case "disk":
		return NewDiskCache(cfg.Dir, cfg.TTL), nil
	case "layered":
		return NewLayeredCache(NewMemoryCache(cfg.TTL, 10*time.Minute), NewDiskCache(cfg.Dir, cfg.TTL)), nil
	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Noop is a cache that stores nothing
type Noop struct{}

func (Noop) Get(string) ([]byte, bool)               { return nil, false }
func (Noop) Set(string, []byte, time.Duration) error { return nil }
func (Noop) Delete(string) error                     { return nil }
func (Noop) Clear() error                            { return nil }
