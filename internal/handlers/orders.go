package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
)

type createOrderRequest struct {
	Items []models.LineItem `json:"items"`
	Bill  decimal.Decimal   `json:"bill"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// CreateOrder starts a hosted checkout for the caller's cart and returns the
// redirect URL.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	identity := auth.FromContext(ctx)
	if identity == nil {
		writeServiceError(w, logger, auth.ErrUnauthenticated)
		return
	}

	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	redirectURL, err := h.checkoutService.CreateOrder(ctx, services.CreateOrderInput{
		UserID:        identity.UserID,
		Customer:      identity.Name,
		CustomerEmail: identity.Email,
		Items:         req.Items,
		Bill:          req.Bill,
	})
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, redirectURL)
}

// ConfirmOrder is polled by the storefront after the checkout redirect.
func (h *Handlers) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := mux.Vars(r)["sessionId"]

	order, err := h.orderService.Confirm(ctx, sessionID)
	if err != nil {
		writeServiceError(w, h.loggerFromContext(ctx).With("session_id", sessionID), err)
		return
	}
	writeSuccess(w, http.StatusOK, order)
}

func (h *Handlers) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	identity := auth.FromContext(ctx)
	if identity == nil {
		writeServiceError(w, logger, auth.ErrUnauthenticated)
		return
	}

	orders, err := h.orderService.ListForUser(ctx, identity.UserID)
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, orders)
}

func (h *Handlers) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orders, err := h.orderService.ListAll(ctx)
	if err != nil {
		writeServiceError(w, h.loggerFromContext(ctx), err)
		return
	}
	writeSuccess(w, http.StatusOK, orders)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		verr := models.NewValidationError()
		verr.Add("orderId", "must be a valid id")
		writeServiceError(w, logger, verr)
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, logger, err)
		return
	}

	order, err := h.orderService.SetStatus(ctx, orderID, req.Status)
	if err != nil {
		writeServiceError(w, logger.With("order_id", orderID), err)
		return
	}
	writeSuccess(w, http.StatusOK, order)
}
