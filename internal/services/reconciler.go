package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/gitshopapp/storefront/internal/checkout"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/stripe"
)

// Outcome describes what a webhook delivery did. Every outcome except a
// returned error is acknowledged to the gateway.
type Outcome string

const (
	OutcomePromoted         Outcome = "promoted"
	OutcomeAlreadyPromoted  Outcome = "already_promoted"
	OutcomeNoSnapshot       Outcome = "no_snapshot"
	OutcomeMissingMetadata  Outcome = "missing_metadata"
	OutcomeAwaitingPayment  Outcome = "awaiting_payment"
	OutcomeSnapshotReleased Outcome = "snapshot_released"
)

// Reconciler turns completed checkout sessions into orders. The unique
// session id on orders is the idempotency guard: a duplicate insert is
// treated as "already promoted". The singleflight group only collapses
// concurrent deliveries inside this process.
type Reconciler struct {
	pending     PendingCheckoutStore
	orders      OrderRepository
	emailSender OrderEmailSender
	inflight    singleflight.Group
	logger      *slog.Logger
}

func NewReconciler(pending PendingCheckoutStore, orders OrderRepository, emailSender OrderEmailSender, logger *slog.Logger) *Reconciler {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	return &Reconciler{
		pending:     pending,
		orders:      orders,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (r *Reconciler) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, r.logger)
}

// HandleCheckoutSessionCompleted promotes the session's pending checkout into
// a paid order. An error means a transient failure and the delivery should be
// retried by the gateway.
func (r *Reconciler) HandleCheckoutSessionCompleted(ctx context.Context, session *stripe.SessionStatus) (Outcome, error) {
	span := sentry.StartSpan(
		ctx,
		"service.reconciler.session_completed",
		sentry.WithOpName("service.reconciler"),
		sentry.WithDescription("HandleCheckoutSessionCompleted"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if session == nil || session.ID == "" {
		return "", fmt.Errorf("missing checkout session")
	}

	v, err, _ := r.inflight.Do(session.ID, func() (any, error) {
		return r.promote(ctx, session)
	})
	outcome, _ := v.(Outcome)

	meter := observability.MeterFromContext(ctx)
	if err != nil {
		meter.Count("checkout.promotion.failed", 1)
		span.Status = sentry.SpanStatusInternalError
		return "", err
	}
	meter.Count("checkout.promotion", 1, sentry.WithAttributes(
		attribute.String("outcome", string(outcome)),
	))
	span.Status = sentry.SpanStatusOK
	return outcome, nil
}

func (r *Reconciler) promote(ctx context.Context, session *stripe.SessionStatus) (Outcome, error) {
	logger := r.loggerFromContext(ctx).With("session_id", session.ID)

	pendingID := session.Metadata[stripe.MetadataPendingCheckoutID]
	if pendingID == "" {
		logger.Info("checkout session has no pending checkout reference; ignoring")
		return OutcomeMissingMetadata, nil
	}
	logger = logger.With("pending_checkout_id", pendingID)

	if !session.Paid() {
		// Delayed payment methods complete the session before funds settle.
		// The async_payment_succeeded event promotes it later.
		logger.Info("checkout session completed without payment; waiting", "payment_status", session.PaymentStatus)
		return OutcomeAwaitingPayment, nil
	}

	snapshot, err := r.pending.Get(ctx, pendingID)
	if err != nil {
		if errors.Is(err, checkout.ErrNotFound) {
			logger.Info("pending checkout not found; treating as already processed or expired")
			return OutcomeNoSnapshot, nil
		}
		return "", fmt.Errorf("failed to load pending checkout: %w", err)
	}

	userID := snapshot.UserID
	if userID == "" {
		userID = session.Metadata[stripe.MetadataUserID]
	}
	order := &models.Order{
		UserID:                userID,
		Customer:              session.Metadata[stripe.MetadataCustomer],
		CustomerEmail:         session.CustomerEmail,
		Items:                 snapshot.Items,
		Bill:                  models.BillFromMinor(session.AmountTotal),
		Status:                models.StatusPaid,
		StripeSessionID:       session.ID,
		StripePaymentIntentID: session.PaymentIntentID,
	}

	outcome := OutcomePromoted
	if err := r.orders.Create(ctx, order); err != nil {
		if !errors.Is(err, db.ErrDuplicateSession) {
			return "", fmt.Errorf("failed to create order: %w", err)
		}
		outcome = OutcomeAlreadyPromoted
		logger.Info("order already exists for checkout session; duplicate delivery")
	} else {
		logger.Info("pending checkout promoted to order", "order_id", order.ID, "bill", order.Bill.StringFixed(2))
	}

	if err := r.pending.Delete(ctx, pendingID); err != nil {
		// The order is durable. A redelivery would hit the duplicate path and
		// the snapshot still expires on its own.
		logger.Warn("failed to delete pending checkout after promotion", "error", err)
	}

	if outcome == OutcomePromoted {
		if err := r.emailSender.SendOrderConfirmation(ctx, order); err != nil {
			logger.Error("failed to send order confirmation email", "error", err, "order_id", order.ID)
		}
	}
	return outcome, nil
}

// HandleCheckoutSessionExpired releases the snapshot of an abandoned session
// ahead of its TTL.
func (r *Reconciler) HandleCheckoutSessionExpired(ctx context.Context, session *stripe.SessionStatus) (Outcome, error) {
	if session == nil || session.ID == "" {
		return "", fmt.Errorf("missing checkout session")
	}
	logger := r.loggerFromContext(ctx).With("session_id", session.ID)

	pendingID := session.Metadata[stripe.MetadataPendingCheckoutID]
	if pendingID == "" {
		return OutcomeMissingMetadata, nil
	}
	if err := r.pending.Delete(ctx, pendingID); err != nil {
		return "", fmt.Errorf("failed to delete pending checkout: %w", err)
	}
	logger.Info("checkout session expired; pending checkout released", "pending_checkout_id", pendingID)
	return OutcomeSnapshotReleased, nil
}
