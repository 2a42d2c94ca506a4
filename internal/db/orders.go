package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/storefront/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateSession means an order already exists for the checkout
	// session. Callers treat it as "already promoted".
	ErrDuplicateSession = errors.New("order already exists for checkout session")
)

const uniqueViolation = "23505"

const orderColumns = `id, user_id, customer, customer_email, items, bill_cents, status,
	stripe_session_id, payment_intent_id, created_at, updated_at`

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order. ID and timestamps are filled in when unset.
func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.StripeSessionID == "" {
		return fmt.Errorf("stripe session id is required")
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}

	query := `
		INSERT INTO orders (id, user_id, customer, customer_email, items, bill_cents, status,
		                    stripe_session_id, payment_intent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		order.ID,
		order.UserID,
		order.Customer,
		nullableText(order.CustomerEmail),
		itemsJSON,
		order.Bill.Shift(2).Round(0).IntPart(),
		string(order.Status),
		order.StripeSessionID,
		nullableText(order.StripePaymentIntentID),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *OrderStore) GetBySessionID(ctx context.Context, sessionID string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_session_id = $1`, sessionID)
	return scanOrder(row)
}

// ListForUser returns the user's orders, newest first.
func (s *OrderStore) ListForUser(ctx context.Context, userID string) ([]*Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for user: %w", err)
	}
	return collectOrders(rows)
}

// ListAll returns every order, newest first.
func (s *OrderStore) ListAll(ctx context.Context) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return collectOrders(rows)
}

// SetStatus overwrites the status and returns the updated order.
func (s *OrderStore) SetStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus) (*Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+orderColumns, string(status), orderID)
	return scanOrder(row)
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order           Order
		customerEmail   pgtype.Text
		paymentIntentID pgtype.Text
		itemsJSON       []byte
		billCents       int64
		status          string
		createdAt       time.Time
		updatedAt       time.Time
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Customer,
		&customerEmail,
		&itemsJSON,
		&billCents,
		&status,
		&order.StripeSessionID,
		&paymentIntentID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	if customerEmail.Valid {
		order.CustomerEmail = customerEmail.String
	}
	if paymentIntentID.Valid {
		order.StripePaymentIntentID = paymentIntentID.String
	}
	order.Bill = models.BillFromMinor(billCents)
	order.Status = models.OrderStatus(status)
	order.CreatedAt = createdAt
	order.UpdatedAt = updatedAt

	return &order, nil
}

func nullableText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
