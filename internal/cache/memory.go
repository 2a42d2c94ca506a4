package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemoryCacheSize = 100_000

// MemoryProvider keeps entries in a bounded LRU. It is meant for a single
// instance; use the redis provider when running more than one replica.
//
// Each entry carries its own expiry, checked on read. When the provider is
// built with a lifetime, the LRU also sweeps entries older than it so stale
// keys stop occupying slots.
type MemoryProvider struct {
	cache *expirable.LRU[string, entry]
	now   func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryProvider(size int) (*MemoryProvider, error) {
	return NewMemoryProviderWithLifetime(size, 0)
}

// NewMemoryProviderWithLifetime bounds how long any entry is kept, regardless
// of the TTL it was written with. Zero disables the sweep.
func NewMemoryProviderWithLifetime(size int, lifetime time.Duration) (*MemoryProvider, error) {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	return &MemoryProvider{
		cache: expirable.NewLRU[string, entry](size, nil, lifetime),
		now:   time.Now,
	}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	cached, ok := m.cache.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	if !m.now().Before(cached.expiresAt) {
		m.cache.Remove(key)
		return "", ErrNotFound
	}
	return cached.value, nil
}

func (m *MemoryProvider) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.cache.Add(key, entry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	})
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	m.cache.Purge()
	return nil
}
