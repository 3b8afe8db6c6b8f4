// Package token signs and verifies bearer access tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/model"
)

const leeway = 30 * time.Second

// Signer mints and validates bearer credentials.
type Signer interface {
	// Sign issues a token embedding the principal's id, email and role.
	Sign(p model.Principal) (token string, expiresAt time.Time, err error)
	// Verify checks signature and expiry and returns the embedded claims.
	Verify(token string) (model.Claims, error)
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// HS256 is a Signer using HMAC-SHA256 JWTs with a fixed TTL.
type HS256 struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

var _ Signer = (*HS256)(nil)

// NewHS256 constructs an HS256 signer.
func NewHS256(key []byte, ttl time.Duration) *HS256 {
	return &HS256{key: key, ttl: ttl, now: time.Now}
}

// Sign creates a signed HS256 JWT for the given principal.
func (s *HS256) Sign(p model.Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	c := claims{
		Email: p.Email,
		Role:  string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	return signed, exp, err
}

// Verify parses tok, enforces HS256, validates time claims and returns the claims.
// All failures wrap errs.ErrUnauthorized.
func (s *HS256) Verify(tok string) (model.Claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(tok, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithLeeway(leeway), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return model.Claims{}, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}

	id, err := uuid.FromString(c.Subject)
	if err != nil {
		return model.Claims{}, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	role := model.Role(c.Role)
	if !role.Valid() {
		return model.Claims{}, fmt.Errorf("bad role claim: %w", errs.ErrUnauthorized)
	}
	return model.Claims{
		PrincipalID: id,
		Email:       c.Email,
		Role:        role,
		ExpiresAt:   c.ExpiresAt.Time,
	}, nil
}
