// Package auth resolves the caller identity from a signed HS256 token.
// Token issuance lives elsewhere; this package only verifies.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "token"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

type claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify parses the token and returns the identity it carries. The subject
// claim is the user id.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}

	var c claims
	parsed, err := v.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	role := c.Role
	if role == "" {
		role = RoleUser
	}
	return &Identity{
		UserID: c.Subject,
		Name:   c.Name,
		Email:  c.Email,
		Role:   role,
	}, nil
}

// Sign issues a token for the identity. Used by tests and local tooling.
func (v *Verifier) Sign(identity Identity, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  identity.Name,
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	return token.SignedString(v.secret)
}

// FromRequest verifies the token cookie, falling back to a Bearer header.
func (v *Verifier) FromRequest(r *http.Request) (*Identity, error) {
	if r == nil {
		return nil, ErrUnauthenticated
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return v.Verify(cookie.Value)
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return v.Verify(strings.TrimSpace(token))
	}
	return nil, ErrUnauthenticated
}

type contextKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

func FromContext(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}
	identity, _ := ctx.Value(contextKey{}).(*Identity)
	return identity
}
