// Package checkout holds cart snapshots between checkout initiation and
// payment confirmation.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/models"
)

const DefaultTTL = 30 * time.Minute

const minorUnitPlaces = 2

var ErrNotFound = errors.New("pending checkout not found")

var itemValidator = validator.New()

// Store persists PendingCheckout snapshots with a fixed TTL. Expiry is
// delegated to the cache provider; Get additionally refuses snapshots whose
// recorded expiry has passed.
type Store struct {
	cache cache.Provider
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

func NewStore(provider cache.Provider, ttl time.Duration) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("cache provider is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cache: provider,
		ttl:   ttl,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

func (s *Store) Create(ctx context.Context, userID string, items []models.LineItem) (*models.PendingCheckout, error) {
	if err := ValidateItems(items); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	pending := &models.PendingCheckout{
		ID:        s.newID(),
		UserID:    userID,
		Items:     append([]models.LineItem(nil), items...),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	payload, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending checkout: %w", err)
	}
	if err := s.cache.Set(ctx, cache.PendingCheckoutKey(pending.ID), string(payload), s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store pending checkout: %w", err)
	}
	return pending, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.PendingCheckout, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	raw, err := s.cache.Get(ctx, cache.PendingCheckoutKey(id))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending checkout: %w", err)
	}

	var pending models.PendingCheckout
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending checkout %s: %w", id, err)
	}
	if !s.now().Before(pending.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &pending, nil
}

// Delete is idempotent: removing an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.cache.Delete(ctx, cache.PendingCheckoutKey(id)); err != nil {
		return fmt.Errorf("failed to delete pending checkout: %w", err)
	}
	return nil
}

// ValidateItems rejects empty carts and lines with missing fields,
// non-positive quantity, or a price that is not a positive whole number of
// minor units.
func ValidateItems(items []models.LineItem) error {
	verr := models.NewValidationError()
	if len(items) == 0 {
		verr.Add("items", "must be a non-empty array")
		return verr
	}

	for i, item := range items {
		prefix := "items[" + strconv.Itoa(i) + "]."
		if err := itemValidator.Struct(item); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					verr.Add(prefix+jsonFieldName(fe.Field()), fieldReason(fe.Tag()))
				}
			} else {
				verr.Add(prefix[:len(prefix)-1], err.Error())
			}
		}
		switch {
		case !item.Price.IsPositive():
			verr.Add(prefix+"price", "must be greater than 0")
		case !item.Price.Equal(item.Price.Round(minorUnitPlaces)):
			// The gateway charges whole minor units; anything finer would
			// make the snapshot disagree with the amount collected.
			verr.Add(prefix+"price", "must have at most 2 decimal places")
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func jsonFieldName(field string) string {
	switch field {
	case "ProductID":
		return "productId"
	case "Name":
		return "name"
	case "Quantity":
		return "quantity"
	case "Size":
		return "size"
	case "Color":
		return "color"
	default:
		return field
	}
}

func fieldReason(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than 0"
	default:
		return "is invalid"
	}
}
