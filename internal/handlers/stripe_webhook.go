package handlers

import (
	"errors"
	"net/http"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/stripe"
)

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := stripe.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		if errors.Is(err, stripe.ErrUnreadablePayload) {
			logger.Warn("failed to read Stripe webhook payload", "error", err)
		} else {
			logger.Warn("rejected Stripe webhook with invalid signature", "error", err)
		}
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}
	logger = logger.With("event_id", event.ID)

	cacheKey := cache.WebhookKey("stripe", event.ID)
	if _, err := h.webhookCache.Get(ctx, cacheKey); err == nil {
		logger.Info("webhook already processed")
		w.WriteHeader(http.StatusOK)
		return
	} else if !errors.Is(err, cache.ErrNotFound) {
		logger.Warn("webhook dedup lookup failed; processing anyway", "error", err)
	}

	if err := h.stripeRouter.Handle(ctx, event); err != nil {
		logger.Error("failed to process Stripe webhook", "error", err, "type", event.Type)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	if err := h.webhookCache.Set(ctx, cacheKey, "processed", cache.WebhookDedupTTL); err != nil {
		logger.Error("failed to mark webhook as processed in cache", "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
