package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type OrderServiceConfig struct {
	// StrictTransitions enforces the forward-only lifecycle. When false any
	// known status may be set on any order.
	StrictTransitions bool
}

type OrderService struct {
	orders  OrderRepository
	gateway PaymentGateway
	config  OrderServiceConfig
	logger  *slog.Logger
}

func NewOrderService(orders OrderRepository, gateway PaymentGateway, config OrderServiceConfig, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders:  orders,
		gateway: gateway,
		config:  config,
		logger:  logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *OrderService) ListForUser(ctx context.Context, userID string) ([]*models.Order, error) {
	if userID == "" {
		verr := models.NewValidationError()
		verr.Add("userId", "is required")
		return nil, verr
	}
	return s.orders.ListForUser(ctx, userID)
}

func (s *OrderService) ListAll(ctx context.Context) ([]*models.Order, error) {
	return s.orders.ListAll(ctx)
}

func statusChoices() string {
	statuses := models.OrderStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

// SetStatus overwrites an order's status. Concurrent edits are last write
// wins.
func (s *OrderService) SetStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	next, err := models.ParseOrderStatus(status)
	if err != nil {
		verr := models.NewValidationError()
		verr.Add("status", "must be one of "+statusChoices())
		return nil, verr
	}

	logger := s.loggerFromContext(ctx).With("order_id", orderID)

	if s.config.StrictTransitions {
		current, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !models.CanTransitionStrict(current.Status, next) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, next)
		}
	}

	order, err := s.orders.SetStatus(ctx, orderID, next)
	if err != nil {
		return nil, err
	}

	observability.MeterFromContext(ctx).Count("order.status.updated", 1, sentry.WithAttributes(
		attribute.String("status", string(next)),
	))
	logger.Info("order status updated", "status", next)
	return order, nil
}

// Confirm is the point-in-time check behind the post-checkout poll. The
// gateway must report the session as paid before any order data is returned.
func (s *OrderService) Confirm(ctx context.Context, sessionID string) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.confirm",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("Confirm"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if sessionID == "" {
		verr := models.NewValidationError()
		verr.Add("sessionId", "is required")
		return nil, verr
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, stripe.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: unknown session", ErrPaymentNotCompleted)
		}
		return nil, err
	}
	if !session.Paid() {
		s.loggerFromContext(ctx).Info("confirmation requested for unpaid session", "session_id", sessionID, "payment_status", session.PaymentStatus)
		return nil, ErrPaymentNotCompleted
	}

	order, err := s.orders.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			observability.MeterFromContext(ctx).Count("order.confirm.not_ready", 1)
			return nil, ErrOrderNotReady
		}
		return nil, err
	}
	span.Status = sentry.SpanStatusOK
	return order, nil
}
