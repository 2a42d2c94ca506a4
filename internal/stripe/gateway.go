package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

// Metadata keys written on every checkout session. They are the only way the
// webhook can recover context, since the gateway knows nothing about orders.
const (
	MetadataPendingCheckoutID = "pendingCheckoutId"
	MetadataUserID            = "userId"
	MetadataBill              = "bill"
	MetadataCustomer          = "customer"
)

const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionExpired               = "checkout.session.expired"
	EventCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrSessionNotFound    = errors.New("checkout session not found")

	// ErrGatewayRejected means Stripe refused the request itself, e.g. an
	// invalid_request_error. Retrying the same request will not help.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

type CreateSessionParams struct {
	Items         []models.LineItem
	Currency      string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

type Session struct {
	ID  string
	URL string
}

// SessionStatus is the subset of a checkout session the core relies on.
type SessionStatus struct {
	ID              string
	PaymentStatus   string
	AmountTotal     int64
	PaymentIntentID string
	CustomerEmail   string
	Metadata        map[string]string
}

func (s *SessionStatus) Paid() bool {
	return s != nil && s.PaymentStatus == string(stripeapi.CheckoutSessionPaymentStatusPaid)
}

type GatewayConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BackendURL overrides the API host, e.g. for stripe-mock.
	BackendURL string
}

// Gateway creates and looks up hosted checkout sessions. Every call is bounded
// by Timeout and guarded by a circuit breaker; both failure modes surface as
// ErrGatewayUnavailable so callers can answer with a retryable status.
type Gateway struct {
	client  *stripeapi.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*stripeapi.CheckoutSession]
}

func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	backendConfig := &stripeapi.BackendConfig{
		HTTPClient: observability.NewHTTPClient(timeout),
	}
	if cfg.BackendURL != "" {
		backendConfig.URL = stripeapi.String(cfg.BackendURL)
	}
	backends := stripeapi.NewBackendsWithConfig(backendConfig)
	return &Gateway{
		client:  stripeapi.NewClient(cfg.SecretKey, stripeapi.WithBackends(backends)),
		timeout: timeout,
		breaker: newBreaker("stripe-checkout"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*stripeapi.CheckoutSession] {
	return gobreaker.NewCircuitBreaker[*stripeapi.CheckoutSession](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
	})
}

// Client errors (bad request, missing session) say nothing about gateway
// health and must not trip the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < http.StatusInternalServerError
	}
	return false
}

func (g *Gateway) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	sessionParams := BuildSessionParams(params)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	sess, err := g.breaker.Execute(func() (*stripeapi.CheckoutSession, error) {
		return g.client.V1CheckoutSessions.Create(ctx, sessionParams)
	})
	if err != nil {
		return nil, classifyError("create checkout session", err)
	}

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (g *Gateway) RetrieveSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	sess, err := g.breaker.Execute(func() (*stripeapi.CheckoutSession, error) {
		return g.client.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
	})
	if err != nil {
		return nil, classifyError("retrieve checkout session", err)
	}

	return SessionStatusFrom(sess), nil
}

// BuildSessionParams converts snapshot line items into gateway line items.
// Prices are sent in minor units.
func BuildSessionParams(params CreateSessionParams) *stripeapi.CheckoutSessionCreateParams {
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}

	lineItems := make([]*stripeapi.CheckoutSessionCreateLineItemParams, 0, len(params.Items))
	for _, item := range params.Items {
		lineItems = append(lineItems, &stripeapi.CheckoutSessionCreateLineItemParams{
			PriceData: &stripeapi.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripeapi.String(currency),
				ProductData: &stripeapi.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripeapi.String(item.Name),
					Metadata: map[string]string{
						"productId": item.ProductID,
						"color":     item.Color,
						"size":      item.Size,
					},
				},
				UnitAmount: stripeapi.Int64(item.UnitAmountMinor()),
			},
			Quantity: stripeapi.Int64(item.Quantity),
		})
	}

	sessionParams := &stripeapi.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:         stripeapi.String(params.SuccessURL),
		CancelURL:          stripeapi.String(params.CancelURL),
		LineItems:          lineItems,
		Metadata:           params.Metadata,
	}
	// Customer email is optional. Only send if present to avoid Stripe validation errors.
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripeapi.String(params.CustomerEmail)
	}
	return sessionParams
}

func SessionStatusFrom(sess *stripeapi.CheckoutSession) *SessionStatus {
	if sess == nil {
		return nil
	}
	status := &SessionStatus{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Metadata:      sess.Metadata,
		CustomerEmail: sess.CustomerEmail,
	}
	if sess.PaymentIntent != nil {
		status.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		status.CustomerEmail = sess.CustomerDetails.Email
	}
	return status
}

func classifyError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out", ErrGatewayUnavailable, op)
	}

	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripeapi.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, op)
		}
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
		}
		// 401 and 403 mean our own key is wrong and stay unclassified.
		if stripeErr.HTTPStatusCode >= http.StatusBadRequest &&
			stripeErr.HTTPStatusCode != http.StatusUnauthorized &&
			stripeErr.HTTPStatusCode != http.StatusForbidden {
			return fmt.Errorf("%w: %s: %v", ErrGatewayRejected, op, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
