package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type PendingCheckoutStore interface {
	Create(ctx context.Context, userID string, items []models.LineItem) (*models.PendingCheckout, error)
	Get(ctx context.Context, id string) (*models.PendingCheckout, error)
	Delete(ctx context.Context, id string) error
}

// OrderRepository must report db.ErrDuplicateSession when an order already
// exists for the session id, and db.ErrOrderNotFound for missing orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error)
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, params stripe.CreateSessionParams) (*stripe.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*stripe.SessionStatus, error)
}
