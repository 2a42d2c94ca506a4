package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/models"
)

func sampleItems() []models.LineItem {
	return []models.LineItem{{
		ProductID: "665f1c2e9b1e8a0012345678",
		Name:      "Linen Shirt",
		Price:     decimal.RequireFromString("29.99"),
		Quantity:  2,
		Size:      "M",
		Color:     "white",
	}}
}

func newMemoryStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	provider, err := cache.NewMemoryProvider(128)
	require.NoError(t, err)
	store, err := NewStore(provider, ttl)
	require.NoError(t, err)
	return store
}

func TestStoreCreateGetDelete(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(t, DefaultTTL)
	ctx := context.Background()

	pending, err := store.Create(ctx, "user-1", sampleItems())
	require.NoError(t, err)
	require.NotEmpty(t, pending.ID)
	require.Equal(t, DefaultTTL, pending.ExpiresAt.Sub(pending.CreatedAt))

	got, err := store.Get(ctx, pending.ID)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
	require.Len(t, got.Items, 1)
	require.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("29.99")))

	require.NoError(t, store.Delete(ctx, pending.ID))
	_, err = store.Get(ctx, pending.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(ctx, pending.ID))
	require.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestStoreGetUnknown(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(t, DefaultTTL)
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUnreachableAfterTTL(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(t, time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	pending, err := store.Create(context.Background(), "user-1", sampleItems())
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = store.Get(context.Background(), pending.ID)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(context.Background(), pending.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRedisExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	provider := cache.NewRedisProviderFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = provider.Close() })

	store, err := NewStore(provider, 30*time.Minute)
	require.NoError(t, err)

	pending, err := store.Create(context.Background(), "user-1", sampleItems())
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)
	_, err = store.Get(context.Background(), pending.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidateItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		items     []models.LineItem
		wantField string
	}{
		{name: "empty", items: nil, wantField: "items"},
		{
			name: "zero price",
			items: func() []models.LineItem {
				items := sampleItems()
				items[0].Price = decimal.Zero
				return items
			}(),
			wantField: "items[0].price",
		},
		{
			name: "negative price",
			items: func() []models.LineItem {
				items := sampleItems()
				items[0].Price = decimal.RequireFromString("-1")
				return items
			}(),
			wantField: "items[0].price",
		},
		{
			name: "sub-cent price",
			items: func() []models.LineItem {
				items := sampleItems()
				items[0].Price = decimal.RequireFromString("0.004")
				return items
			}(),
			wantField: "items[0].price",
		},
		{
			name: "fractional cents",
			items: func() []models.LineItem {
				items := sampleItems()
				items[0].Price = decimal.RequireFromString("29.999")
				return items
			}(),
			wantField: "items[0].price",
		},
		{
			name: "zero quantity",
			items: func() []models.LineItem {
				items := sampleItems()
				items[0].Quantity = 0
				return items
			}(),
			wantField: "items[0].quantity",
		},
		{
			name: "missing size",
			items: func() []models.LineItem {
				items := sampleItems()
				items[0].Size = ""
				return items
			}(),
			wantField: "items[0].size",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateItems(tt.items)
			require.Error(t, err)
			require.True(t, errors.Is(err, models.ErrValidation))

			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Contains(t, verr.Fields, tt.wantField)
		})
	}

	require.NoError(t, ValidateItems(sampleItems()))

	smallest := sampleItems()
	smallest[0].Price = decimal.RequireFromString("0.01")
	require.NoError(t, ValidateItems(smallest))
	require.Equal(t, int64(1), smallest[0].UnitAmountMinor())

	trailingZeros := sampleItems()
	trailingZeros[0].Price = decimal.RequireFromString("29.9900")
	require.NoError(t, ValidateItems(trailingZeros))
}

func TestStoreCreateRejectsInvalidItems(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(t, DefaultTTL)
	_, err := store.Create(context.Background(), "user-1", nil)
	require.ErrorIs(t, err, models.ErrValidation)
}
