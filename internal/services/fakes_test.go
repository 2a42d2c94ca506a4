package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/checkout"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/stripe"
)

// memoryOrders mirrors the Postgres store, including the unique session id.
type memoryOrders struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.Order
	bySession map[string]uuid.UUID
	createErr error
	now       time.Time
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{
		byID:      map[uuid.UUID]*models.Order{},
		bySession: map[string]uuid.UUID{},
		now:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memoryOrders) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.bySession[order.StripeSessionID]; exists {
		return db.ErrDuplicateSession
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	m.now = m.now.Add(time.Second)
	order.CreatedAt = m.now
	order.UpdatedAt = m.now
	stored := *order
	m.byID[order.ID] = &stored
	m.bySession[order.StripeSessionID] = order.ID
	return nil
}

func (m *memoryOrders) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.byID[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *memoryOrders) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	m.mu.Lock()
	id, ok := m.bySession[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memoryOrders) ListForUser(_ context.Context, userID string) ([]*models.Order, error) {
	return m.list(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (m *memoryOrders) ListAll(context.Context) ([]*models.Order, error) {
	return m.list(func(*models.Order) bool { return true }), nil
}

func (m *memoryOrders) list(keep func(*models.Order) bool) []*models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]*models.Order, 0)
	for _, order := range m.byID {
		if keep(order) {
			copied := *order
			orders = append(orders, &copied)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (m *memoryOrders) SetStatus(_ context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.byID[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	order.Status = status
	copied := *order
	return &copied, nil
}

func (m *memoryOrders) countForSession(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, order := range m.byID {
		if order.StripeSessionID == sessionID {
			count++
		}
	}
	return count
}

type fakeGateway struct {
	mu        sync.Mutex
	sessions  map[string]*stripe.SessionStatus
	created   []stripe.CreateSessionParams
	createErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*stripe.SessionStatus{}}
}

func (g *fakeGateway) CreateSession(_ context.Context, params stripe.CreateSessionParams) (*stripe.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, params)
	id := "cs_test_" + uuid.NewString()
	return &stripe.Session{ID: id, URL: "https://checkout.stripe.test/pay/" + id}, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, sessionID string) (*stripe.SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, stripe.ErrSessionNotFound
	}
	return session, nil
}

// flakyPending wraps a real store and injects failures.
type flakyPending struct {
	PendingCheckoutStore
	getErr    error
	deleteErr error
}

func (f *flakyPending) Get(ctx context.Context, id string) (*models.PendingCheckout, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.PendingCheckoutStore.Get(ctx, id)
}

func (f *flakyPending) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.PendingCheckoutStore.Delete(ctx, id)
}

type recordingEmailSender struct {
	mu   sync.Mutex
	sent []*models.Order
	err  error
}

func (s *recordingEmailSender) SendOrderConfirmation(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, order)
	return s.err
}

func (s *recordingEmailSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var errStorageDown = errors.New("storage unavailable")

func newPendingStore(t *testing.T) *checkout.Store {
	t.Helper()
	provider, err := cache.NewMemoryProvider(1024)
	require.NoError(t, err)
	store, err := checkout.NewStore(provider, checkout.DefaultTTL)
	require.NoError(t, err)
	return store
}

func shirtItems() []models.LineItem {
	return []models.LineItem{{
		ProductID: "665f1c2e9b1e8a0012345678",
		Name:      "Linen Shirt",
		Price:     decimal.RequireFromString("29.99"),
		Quantity:  2,
		Size:      "M",
		Color:     "white",
	}}
}

func paidSession(sessionID, pendingID string, amountTotal int64) *stripe.SessionStatus {
	return &stripe.SessionStatus{
		ID:              sessionID,
		PaymentStatus:   "paid",
		AmountTotal:     amountTotal,
		PaymentIntentID: "pi_" + sessionID,
		CustomerEmail:   "ada@example.com",
		Metadata: map[string]string{
			stripe.MetadataPendingCheckoutID: pendingID,
			stripe.MetadataUserID:            "user-1",
			stripe.MetadataBill:              "59.98",
			stripe.MetadataCustomer:          "Ada Lovelace",
		},
	}
}
