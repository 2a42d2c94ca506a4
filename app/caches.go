package app

import (
	"fmt"
	"log/slog"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/config"
)

// caches holds the provider behind pending checkouts and the one behind
// webhook deduplication. In memory they are separate LRUs so a burst of
// event ids cannot evict a snapshot a buyer is still paying for. Redis
// expires keys natively, so both roles share one client.
type caches struct {
	checkout cache.Provider
	webhooks cache.Provider
}

func newCaches(cfg *config.Config, memorySize int) (*caches, error) {
	if cfg.CacheProvider == "redis" {
		shared, err := cache.NewProvider(cache.Config{
			Provider:              cfg.CacheProvider,
			RedisConnectionString: cfg.RedisConnectionString,
		})
		if err != nil {
			return nil, err
		}
		return &caches{checkout: shared, webhooks: shared}, nil
	}

	checkoutCache, err := cache.NewProvider(cache.Config{
		Provider:       cfg.CacheProvider,
		MemorySize:     memorySize,
		MemoryLifetime: cfg.PendingCheckoutTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout cache: %w", err)
	}
	webhookCache, err := cache.NewProvider(cache.Config{
		Provider:       cfg.CacheProvider,
		MemorySize:     memorySize,
		MemoryLifetime: cache.WebhookDedupTTL,
	})
	if err != nil {
		_ = checkoutCache.Close()
		return nil, fmt.Errorf("webhook cache: %w", err)
	}
	return &caches{checkout: checkoutCache, webhooks: webhookCache}, nil
}

func (c *caches) Close(logger *slog.Logger) {
	if c == nil {
		return
	}
	closeCacheProvider(logger, c.checkout)
	if c.webhooks != c.checkout {
		closeCacheProvider(logger, c.webhooks)
	}
}
