package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type sessionReconciler interface {
	HandleCheckoutSessionCompleted(ctx context.Context, session *stripe.SessionStatus) (services.Outcome, error)
	HandleCheckoutSessionExpired(ctx context.Context, session *stripe.SessionStatus) (services.Outcome, error)
}

type StripeEventRouter struct {
	reconciler sessionReconciler
	logger     *slog.Logger
}

func NewStripeEventRouter(reconciler sessionReconciler, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Handle dispatches a verified event. A returned error makes the webhook
// answer 500 so the gateway redelivers.
func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if event == nil {
		recordFailed("missing_event")
		return fmt.Errorf("missing stripe event")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	logger := logging.FromContext(ctx, r.logger).With("event_id", event.ID, "type", event.Type)

	var handle func(context.Context, *stripe.SessionStatus) (services.Outcome, error)
	switch string(event.Type) {
	case stripe.EventCheckoutSessionCompleted, stripe.EventCheckoutSessionAsyncPaymentSucceeded:
		handle = r.reconciler.HandleCheckoutSessionCompleted
	case stripe.EventCheckoutSessionExpired, stripe.EventCheckoutSessionAsyncPaymentFailed:
		handle = r.reconciler.HandleCheckoutSessionExpired
	default:
		logger.Info("unhandled Stripe event type")
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	session, err := stripe.CheckoutSessionFromEvent(event)
	if err != nil {
		// Signed but unusable. Redelivery would not change the payload.
		recordFailed("invalid_event_object")
		logger.Warn("ignoring checkout event with unusable payload", "error", err)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	outcome, err := handle(logging.WithLogger(ctx, logger), stripe.SessionStatusFrom(session))
	if err != nil {
		recordFailed(string(event.Type))
		span.Status = sentry.SpanStatusInternalError
		return err
	}

	meter.Count("webhook.router.processed", 1, sentry.WithAttributes(attribute.String("outcome", string(outcome))))
	span.Status = sentry.SpanStatusOK
	return nil
}
