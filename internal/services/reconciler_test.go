package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/checkout"
	"github.com/gitshopapp/storefront/internal/models"
)

type reconcilerFixture struct {
	pending *checkout.Store
	orders  *memoryOrders
	emails  *recordingEmailSender
	rec     *Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		pending: newPendingStore(t),
		orders:  newMemoryOrders(),
		emails:  &recordingEmailSender{},
	}
	f.rec = NewReconciler(f.pending, f.orders, f.emails, nil)
	return f
}

func TestReconcilerPromotesPaidSession(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	ctx := context.Background()

	pending, err := f.pending.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)

	outcome, err := f.rec.HandleCheckoutSessionCompleted(ctx, paidSession("cs_1", pending.ID, 5998))
	require.NoError(t, err)
	require.Equal(t, OutcomePromoted, outcome)

	order, err := f.orders.GetBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	require.True(t, order.Bill.Equal(decimal.RequireFromString("59.98")))
	require.Equal(t, models.StatusPaid, order.Status)
	require.Equal(t, "user-1", order.UserID)
	require.Equal(t, "Ada Lovelace", order.Customer)
	require.Equal(t, "pi_cs_1", order.StripePaymentIntentID)
	require.Len(t, order.Items, 1)
	require.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("29.99")))

	_, err = f.pending.Get(ctx, pending.ID)
	require.ErrorIs(t, err, checkout.ErrNotFound)
	require.Equal(t, 1, f.emails.count())
}

func TestReconcilerBillComesFromGateway(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	ctx := context.Background()

	pending, err := f.pending.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)

	session := paidSession("cs_amount", pending.ID, 4200)
	session.Metadata["bill"] = "0.01"

	_, err = f.rec.HandleCheckoutSessionCompleted(ctx, session)
	require.NoError(t, err)

	order, err := f.orders.GetBySessionID(ctx, "cs_amount")
	require.NoError(t, err)
	require.True(t, order.Bill.Equal(decimal.RequireFromString("42")), "bill = %s", order.Bill)
}

func TestReconcilerSequentialReplayIsNoop(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	ctx := context.Background()

	pending, err := f.pending.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)
	session := paidSession("cs_replay", pending.ID, 5998)

	first, err := f.rec.HandleCheckoutSessionCompleted(ctx, session)
	require.NoError(t, err)
	require.Equal(t, OutcomePromoted, first)

	second, err := f.rec.HandleCheckoutSessionCompleted(ctx, session)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSnapshot, second)

	require.Equal(t, 1, f.orders.countForSession("cs_replay"))
	require.Equal(t, 1, f.emails.count())
}

func TestReconcilerConcurrentDeliveriesCreateOneOrder(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	ctx := context.Background()

	pending, err := f.pending.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)

	const deliveries = 16
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rec.HandleCheckoutSessionCompleted(ctx, paidSession("cs_race", pending.ID, 5998))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, f.orders.countForSession("cs_race"))
	require.Equal(t, 1, f.emails.count())
}

func TestReconcilerConcurrentAcrossInstances(t *testing.T) {
	t.Parallel()

	// Two reconcilers share storage but not a singleflight group, as two
	// replicas would. The unique session id still yields one order.
	pendingStore := newPendingStore(t)
	orders := newMemoryOrders()
	replicas := []*Reconciler{
		NewReconciler(pendingStore, orders, nil, nil),
		NewReconciler(pendingStore, orders, nil, nil),
	}
	ctx := context.Background()

	pending, err := pendingStore.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := replicas[i%2].HandleCheckoutSessionCompleted(ctx, paidSession("cs_replicas", pending.ID, 5998))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, orders.countForSession("cs_replicas"))
}

func TestReconcilerDeleteFailureStillAcks(t *testing.T) {
	t.Parallel()

	pendingStore := newPendingStore(t)
	flaky := &flakyPending{PendingCheckoutStore: pendingStore, deleteErr: errStorageDown}
	orders := newMemoryOrders()
	rec := NewReconciler(flaky, orders, nil, nil)
	ctx := context.Background()

	pending, err := pendingStore.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)
	session := paidSession("cs_delete_fail", pending.ID, 5998)

	outcome, err := rec.HandleCheckoutSessionCompleted(ctx, session)
	require.NoError(t, err)
	require.Equal(t, OutcomePromoted, outcome)

	// The snapshot survived, so a redelivery reaches the insert again and
	// must be stopped by the unique session id.
	outcome, err = rec.HandleCheckoutSessionCompleted(ctx, session)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyPromoted, outcome)
	require.Equal(t, 1, orders.countForSession("cs_delete_fail"))

	// Once storage recovers the duplicate path still cleans up.
	flaky.deleteErr = nil
	outcome, err = rec.HandleCheckoutSessionCompleted(ctx, session)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyPromoted, outcome)
	_, err = pendingStore.Get(ctx, pending.ID)
	require.ErrorIs(t, err, checkout.ErrNotFound)
}

func TestReconcilerTransientErrorsAreReturned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("snapshot lookup", func(t *testing.T) {
		t.Parallel()
		pendingStore := newPendingStore(t)
		pending, err := pendingStore.Create(ctx, "user-1", shirtItems())
		require.NoError(t, err)

		rec := NewReconciler(&flakyPending{PendingCheckoutStore: pendingStore, getErr: errStorageDown}, newMemoryOrders(), nil, nil)
		_, err = rec.HandleCheckoutSessionCompleted(ctx, paidSession("cs_t1", pending.ID, 5998))
		require.ErrorIs(t, err, errStorageDown)
	})

	t.Run("order insert", func(t *testing.T) {
		t.Parallel()
		pendingStore := newPendingStore(t)
		pending, err := pendingStore.Create(ctx, "user-1", shirtItems())
		require.NoError(t, err)

		orders := newMemoryOrders()
		orders.createErr = errStorageDown
		rec := NewReconciler(pendingStore, orders, nil, nil)
		_, err = rec.HandleCheckoutSessionCompleted(ctx, paidSession("cs_t2", pending.ID, 5998))
		require.ErrorIs(t, err, errStorageDown)

		// Nothing was consumed; the retry can still promote.
		_, err = pendingStore.Get(ctx, pending.ID)
		require.NoError(t, err)
	})
}

func TestReconcilerIgnoresSessionsWithoutReference(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	session := paidSession("cs_foreign", "", 5998)
	delete(session.Metadata, "pendingCheckoutId")

	outcome, err := f.rec.HandleCheckoutSessionCompleted(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, OutcomeMissingMetadata, outcome)
	require.Equal(t, 0, f.orders.countForSession("cs_foreign"))
}

func TestReconcilerUnpaidSessionKeepsSnapshot(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	ctx := context.Background()

	pending, err := f.pending.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)
	session := paidSession("cs_async", pending.ID, 5998)
	session.PaymentStatus = "unpaid"

	outcome, err := f.rec.HandleCheckoutSessionCompleted(ctx, session)
	require.NoError(t, err)
	require.Equal(t, OutcomeAwaitingPayment, outcome)
	require.Equal(t, 0, f.orders.countForSession("cs_async"))

	_, err = f.pending.Get(ctx, pending.ID)
	require.NoError(t, err)
}

func TestReconcilerWebhookAfterExpiryIsNoop(t *testing.T) {
	t.Parallel()

	provider, err := cache.NewMemoryProvider(64)
	require.NoError(t, err)
	pendingStore, err := checkout.NewStore(provider, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	pending, err := pendingStore.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)

	// Release the snapshot as the TTL would.
	require.NoError(t, pendingStore.Delete(ctx, pending.ID))

	orders := newMemoryOrders()
	rec := NewReconciler(pendingStore, orders, nil, nil)
	outcome, err := rec.HandleCheckoutSessionCompleted(ctx, paidSession("cs_late", pending.ID, 5998))
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSnapshot, outcome)
	require.Equal(t, 0, orders.countForSession("cs_late"))
}

func TestReconcilerExpiredSessionReleasesSnapshot(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	ctx := context.Background()

	pending, err := f.pending.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)

	session := paidSession("cs_expired", pending.ID, 0)
	session.PaymentStatus = "unpaid"
	outcome, err := f.rec.HandleCheckoutSessionExpired(ctx, session)
	require.NoError(t, err)
	require.Equal(t, OutcomeSnapshotReleased, outcome)

	_, err = f.pending.Get(ctx, pending.ID)
	require.ErrorIs(t, err, checkout.ErrNotFound)

	// Releasing twice is fine.
	_, err = f.rec.HandleCheckoutSessionExpired(ctx, session)
	require.NoError(t, err)
}

func TestReconcilerEmailFailureDoesNotFailPromotion(t *testing.T) {
	t.Parallel()

	f := newReconcilerFixture(t)
	f.emails.err = errStorageDown
	ctx := context.Background()

	pending, err := f.pending.Create(ctx, "user-1", shirtItems())
	require.NoError(t, err)

	outcome, err := f.rec.HandleCheckoutSessionCompleted(ctx, paidSession("cs_mail", pending.ID, 5998))
	require.NoError(t, err)
	require.Equal(t, OutcomePromoted, outcome)
}
