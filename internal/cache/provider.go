// Package cache provides a TTL key/value store backing pending checkouts and
// webhook event deduplication.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

// WebhookDedupTTL is how long processed webhook event ids are remembered.
const WebhookDedupTTL = 24 * time.Hour

// Provider is a string key/value store whose entries become unreachable once
// their TTL elapses.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
	MemorySize            int

	// MemoryLifetime caps how long the memory provider keeps any entry.
	MemoryLifetime time.Duration
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProviderWithLifetime(cfg.MemorySize, cfg.MemoryLifetime)
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

func PendingCheckoutKey(id string) string {
	return "pending_checkout:" + id
}
