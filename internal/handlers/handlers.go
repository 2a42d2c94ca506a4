package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxJSONBodyBytes    = 1 << 20
)

type pinger interface {
	Ping(ctx context.Context) error
}

type checkoutCreator interface {
	CreateOrder(ctx context.Context, input services.CreateOrderInput) (string, error)
}

type orderManager interface {
	ListForUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error)
	Confirm(ctx context.Context, sessionID string) (*models.Order, error)
}

type identityVerifier interface {
	FromRequest(r *http.Request) (*auth.Identity, error)
}

// Handlers serves the storefront JSON API and the payment webhook.
type Handlers struct {
	config          *config.Config
	db              pinger
	webhookCache    cache.Provider
	checkoutService checkoutCreator
	orderService    orderManager
	stripeRouter    *StripeEventRouter
	verifier        identityVerifier
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	DB              pinger
	// WebhookCache remembers processed event ids. It must not share an
	// eviction pool with pending checkouts.
	WebhookCache    cache.Provider
	CheckoutService checkoutCreator
	OrderService    orderManager
	StripeRouter    *StripeEventRouter
	Verifier        identityVerifier
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.WebhookCache == nil {
		return nil, fmt.Errorf("handlers dependencies: webhookCache is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}

	return &Handlers{
		config:          deps.Config,
		db:              deps.DB,
		webhookCache:    deps.WebhookCache,
		checkoutService: deps.CheckoutService,
		orderService:    deps.OrderService,
		stripeRouter:    deps.StripeRouter,
		verifier:        deps.Verifier,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.db.Ping(ctx); err != nil {
		h.loggerFromContext(ctx).Error("database health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, envelope{Status: statusError, Message: "database unhealthy"})
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
