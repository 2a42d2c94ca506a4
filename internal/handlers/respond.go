package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/stripe"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// confirmRetryAfterSeconds is how long the client should wait before polling
// a paid session whose order has not been recorded yet.
const confirmRetryAfterSeconds = "2"

type envelope struct {
	Status    string            `json:"status"`
	Data      any               `json:"data,omitempty"`
	Message   string            `json:"message,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: statusSuccess, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: statusFail, Message: message})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, envelope{Status: statusFail, Message: "validation failed", Errors: verr.Fields})
	case errors.Is(err, models.ErrValidation):
		writeFail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeFail(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeFail(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrPaymentNotCompleted):
		writeFail(w, http.StatusForbidden, "payment not completed")
	case errors.Is(err, services.ErrOrderNotReady):
		w.Header().Set("Retry-After", confirmRetryAfterSeconds)
		writeJSON(w, http.StatusNotFound, envelope{
			Status:    statusFail,
			Message:   "order is still being processed",
			Retryable: true,
		})
	case errors.Is(err, services.ErrOrderNotFound):
		writeFail(w, http.StatusNotFound, "order not found")
	case errors.Is(err, services.ErrInvalidStatusTransition):
		writeFail(w, http.StatusConflict, err.Error())
	case errors.Is(err, stripe.ErrGatewayUnavailable):
		logger.Warn("payment gateway unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, envelope{Status: statusError, Message: "payment provider unavailable, try again shortly"})
	case errors.Is(err, stripe.ErrGatewayRejected):
		logger.Warn("payment gateway rejected request", "error", err)
		writeJSON(w, http.StatusBadGateway, envelope{Status: statusError, Message: "payment provider rejected the checkout"})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Status: statusError, Message: "internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		verr := models.NewValidationError()
		verr.Add("body", "must be valid JSON: "+err.Error())
		return verr
	}
	return nil
}
