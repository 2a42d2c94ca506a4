package services

import (
	"errors"

	"github.com/gitshopapp/storefront/internal/checkout"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/stripe"
)

var (
	ErrValidation = models.ErrValidation
	// ErrPaymentNotCompleted is returned by Confirm when the gateway does not
	// report the session as paid. Order data is never returned in that case.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrOrderNotReady means the session is paid but the webhook has not
	// recorded the order yet. Callers should poll again shortly.
	ErrOrderNotReady           = errors.New("order not recorded yet")
	ErrOrderNotFound           = db.ErrOrderNotFound
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

var (
	_ PendingCheckoutStore = (*checkout.Store)(nil)
	_ OrderRepository      = (*db.OrderStore)(nil)
	_ PaymentGateway       = (*stripe.Gateway)(nil)
)
