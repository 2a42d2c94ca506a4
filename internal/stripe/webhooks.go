// Package stripe wraps the hosted checkout gateway and webhook validation.
package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const SignatureHeader = "Stripe-Signature"

var (
	ErrInvalidSignature  = errors.New("invalid stripe webhook signature")
	ErrUnreadablePayload = errors.New("unreadable stripe webhook payload")
)

// ReadWebhookEvent reads the raw request body and verifies its signature
// before anything in it is trusted.
func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SignatureHeader)
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePayload, err)
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return &event, nil
}

// CheckoutSessionFromEvent decodes the checkout session carried by a
// checkout.session.* event.
func CheckoutSessionFromEvent(event *stripeapi.Event) (*stripeapi.CheckoutSession, error) {
	if event == nil || event.Data == nil {
		return nil, fmt.Errorf("missing stripe event data")
	}
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("invalid event object: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("missing session ID")
	}
	return &session, nil
}
