package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/checkout"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type CheckoutService struct {
	pending PendingCheckoutStore
	gateway PaymentGateway
	config  CheckoutConfig
	logger  *slog.Logger
}

func NewCheckoutService(pending PendingCheckoutStore, gateway PaymentGateway, config CheckoutConfig, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		pending: pending,
		gateway: gateway,
		config:  config,
		logger:  logger,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CreateOrderInput struct {
	UserID        string
	Customer      string
	CustomerEmail string
	Items         []models.LineItem
	// Bill is the client-computed total. It travels to the gateway as
	// metadata only; the recorded order uses the gateway's total.
	Bill decimal.Decimal
}

// CreateOrder snapshots the cart and opens a hosted checkout session for it.
// It returns the URL the buyer should be redirected to.
func (s *CheckoutService) CreateOrder(ctx context.Context, input CreateOrderInput) (string, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.create_order",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("CreateOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		observability.CountReason(ctx, "checkout.create.failed", reason)
	}

	if err := validateCreateOrder(input); err != nil {
		recordFailure("validation")
		return "", err
	}

	pending, err := s.pending.Create(ctx, input.UserID, input.Items)
	if err != nil {
		recordFailure("snapshot_create_failed")
		return "", fmt.Errorf("failed to create pending checkout: %w", err)
	}

	session, err := s.gateway.CreateSession(ctx, stripe.CreateSessionParams{
		Items:         pending.Items,
		Currency:      s.config.Currency,
		SuccessURL:    s.config.SuccessURL,
		CancelURL:     s.config.CancelURL,
		CustomerEmail: input.CustomerEmail,
		Metadata: map[string]string{
			stripe.MetadataPendingCheckoutID: pending.ID,
			stripe.MetadataUserID:            input.UserID,
			stripe.MetadataBill:              input.Bill.String(),
			stripe.MetadataCustomer:          input.Customer,
		},
	})
	if err != nil {
		recordFailure("session_create_failed")
		if delErr := s.pending.Delete(ctx, pending.ID); delErr != nil {
			logger.Warn("failed to discard pending checkout after gateway error", "error", delErr, "pending_checkout_id", pending.ID)
		}
		return "", err
	}

	meter.Count("checkout.create.succeeded", 1)
	span.Status = sentry.SpanStatusOK
	logger.Info("checkout session created",
		"pending_checkout_id", pending.ID,
		"session_id", session.ID,
		"user_id", input.UserID,
		"items", len(pending.Items),
	)
	return session.URL, nil
}

func validateCreateOrder(input CreateOrderInput) error {
	verr := models.NewValidationError()
	if input.UserID == "" {
		verr.Add("userId", "is required")
	}
	if err := checkout.ValidateItems(input.Items); err != nil {
		var itemErr *models.ValidationError
		if !errors.As(err, &itemErr) {
			return err
		}
		for field, reason := range itemErr.Fields {
			verr.Add(field, reason)
		}
	}
	if !input.Bill.IsPositive() {
		verr.Add("bill", "must be greater than 0")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
