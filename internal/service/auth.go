// Package service contains the application services: sessions, principal
// management and the certificate lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/certvault/internal/crypto"
	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/limiter"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/repository"
	"github.com/and161185/certvault/internal/token"
)

// RegisterRequest is a self-registration.
type RegisterRequest struct {
	Email  string
	Secret string
	Name   string
	Role   model.Role // empty means recipient
}

// AuthService defines authentication and session operations.
type AuthService interface {
	// Register creates an account and returns it with an access token.
	Register(ctx context.Context, req RegisterRequest) (model.Principal, model.Tokens, error)
	// Login applies rate limiting per (email, ip) and authenticates the principal.
	Login(ctx context.Context, email, secret, ip string) (model.Tokens, model.Principal, error)
	// Authenticate validates a bearer token against the current principal state.
	Authenticate(ctx context.Context, token string) (model.Claims, error)
	// BootstrapAdmin creates an admin account if email is not taken yet.
	BootstrapAdmin(ctx context.Context, email, secret, name string) (bool, error)
}

type AuthServiceImpl struct {
	principals repository.PrincipalRepository
	hasher     crypto.SecretHasher
	signer     token.Signer
	lim        limiter.Limiter
	minSecret  int
	log        *zap.Logger

	// decoy is the digest compared for unknown or inactive accounts.
	decoy string
}

var _ AuthService = (*AuthServiceImpl)(nil)

const decoySecret = "certvault-login-decoy"

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	principals repository.PrincipalRepository,
	hasher crypto.SecretHasher,
	signer token.Signer,
	lim limiter.Limiter,
	minSecretLen int,
	log *zap.Logger,
) *AuthServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	decoy, err := hasher.Hash(decoySecret)
	if err != nil {
		log.Warn("decoy digest", zap.Error(err))
	}
	return &AuthServiceImpl{
		principals: principals,
		hasher:     hasher,
		signer:     signer,
		lim:        lim,
		minSecret:  minSecretLen,
		log:        log,
		decoy:      decoy,
	}
}

// Register validates the request, stores the principal and signs a token.
// Self-registration cannot create admins.
func (s *AuthServiceImpl) Register(ctx context.Context, req RegisterRequest) (model.Principal, model.Tokens, error) {
	if req.Role == "" {
		req.Role = model.RoleRecipient
	}
	if !req.Role.Valid() {
		return model.Principal{}, model.Tokens{}, fmt.Errorf("unknown role %q: %w", req.Role, errs.ErrValidation)
	}
	if req.Role == model.RoleAdmin {
		return model.Principal{}, model.Tokens{}, fmt.Errorf("self-registration as admin: %w", errs.ErrForbidden)
	}

	p, err := s.newPrincipal(req.Email, req.Secret, req.Name, req.Role)
	if err != nil {
		return model.Principal{}, model.Tokens{}, err
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return model.Principal{}, model.Tokens{}, err
	}
	s.log.Info("principal registered", zap.Stringer("principal_id", p.ID), zap.String("role", string(p.Role)))

	tok, exp, err := s.signer.Sign(*p)
	if err != nil {
		return model.Principal{}, model.Tokens{}, err
	}
	return *p, model.Tokens{AccessToken: tok, ExpiresAt: exp}, nil
}

// Login authenticates with rate limiting by (email, ip). Unknown email,
// inactive account and wrong secret are indistinguishable to the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, email, secret, ip string) (model.Tokens, model.Principal, error) {
	email, err := normalizeEmail(email)
	if err != nil || secret == "" {
		return model.Tokens{}, model.Principal{}, fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized)
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.Principal{}, err
	}
	if !allowed {
		return model.Tokens{}, model.Principal{}, errs.ErrRateLimited
	}

	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.Principal{}, err
	}
	if err != nil {
		p = nil
	}
	digest := s.decoy
	if p != nil && p.Active {
		digest = p.SecretHash
	}
	if ok := s.hasher.Compare(secret, digest); !ok || p == nil || !p.Active {
		fields := []zap.Field{}
		if p != nil {
			fields = append(fields, zap.Stringer("principal_id", p.ID))
		}
		s.log.Info("login failed", fields...)
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.Principal{}, errs.ErrRateLimited
		}
		return model.Tokens{}, model.Principal{}, fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized)
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}

	tok, exp, err := s.signer.Sign(*p)
	if err != nil {
		return model.Tokens{}, model.Principal{}, err
	}
	return model.Tokens{AccessToken: tok, ExpiresAt: exp}, *p, nil
}

// Authenticate verifies tok and reloads the principal so that deactivation
// and role changes take effect before the token expires.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, tok string) (model.Claims, error) {
	c, err := s.signer.Verify(tok)
	if err != nil {
		return model.Claims{}, err
	}
	p, err := s.principals.GetByID(ctx, c.PrincipalID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Claims{}, fmt.Errorf("unknown principal: %w", errs.ErrUnauthorized)
	}
	if err != nil {
		return model.Claims{}, err
	}
	if !p.Active {
		return model.Claims{}, fmt.Errorf("principal inactive: %w", errs.ErrUnauthorized)
	}
	c.Email = p.Email
	c.Role = p.Role
	return c, nil
}

// BootstrapAdmin creates the configured admin unless the email already exists.
func (s *AuthServiceImpl) BootstrapAdmin(ctx context.Context, email, secret, name string) (bool, error) {
	p, err := s.newPrincipal(email, secret, name, model.RoleAdmin)
	if err != nil {
		return false, err
	}
	if _, err := s.principals.GetByEmail(ctx, p.Email); err == nil {
		return false, nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return false, err
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	s.log.Info("bootstrap admin created", zap.Stringer("principal_id", p.ID))
	return true, nil
}

func (s *AuthServiceImpl) newPrincipal(email, secret, name string, role model.Role) (*model.Principal, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name, err = required("name", name)
	if err != nil {
		return nil, err
	}
	if len(secret) < s.minSecret {
		return nil, fmt.Errorf("secret shorter than %d: %w", s.minSecret, errs.ErrValidation)
	}
	digest, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &model.Principal{
		ID:         id,
		Email:      email,
		SecretHash: digest,
		Name:       name,
		Role:       role,
		Active:     true,
	}, nil
}
