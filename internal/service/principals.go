package service

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/policy"
	"github.com/and161185/certvault/internal/repository"
)

// NewPrincipal is an admin-created account.
type NewPrincipal struct {
	Email  string
	Secret string
	Name   string
	Role   model.Role
}

// PrincipalService manages accounts. Everything except Profile requires admin.
type PrincipalService interface {
	Profile(ctx context.Context, caller policy.Caller) (model.Principal, error)
	Create(ctx context.Context, caller policy.Caller, req NewPrincipal) (model.Principal, error)
	Get(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.Principal, error)
	ListByRole(ctx context.Context, caller policy.Caller, role model.Role) ([]model.Principal, error)
	Update(ctx context.Context, caller policy.Caller, id uuid.UUID, upd model.PrincipalUpdate) (model.Principal, error)
	Deactivate(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.Principal, error)
	SetStatus(ctx context.Context, caller policy.Caller, id uuid.UUID, active bool) (model.Principal, error)
	ChangeRole(ctx context.Context, caller policy.Caller, id uuid.UUID, role model.Role) (model.Principal, error)
}

type PrincipalServiceImpl struct {
	repo repository.PrincipalRepository
	auth *AuthServiceImpl
	log  *zap.Logger
}

var _ PrincipalService = (*PrincipalServiceImpl)(nil)

// NewPrincipalService constructs PrincipalService. auth supplies secret hashing
// and validation for admin-created accounts.
func NewPrincipalService(repo repository.PrincipalRepository, auth *AuthServiceImpl, log *zap.Logger) *PrincipalServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrincipalServiceImpl{repo: repo, auth: auth, log: log}
}

// Profile returns the caller's own account.
func (s *PrincipalServiceImpl) Profile(ctx context.Context, caller policy.Caller) (model.Principal, error) {
	if _, err := policy.Authorize(policy.OpProfile, caller, policy.IDScope(caller, caller.ID)); err != nil {
		return model.Principal{}, err
	}
	return deref(s.repo.GetByID(ctx, caller.ID))
}

// Create stores a new account with any role.
func (s *PrincipalServiceImpl) Create(ctx context.Context, caller policy.Caller, req NewPrincipal) (model.Principal, error) {
	if err := s.admin(caller); err != nil {
		return model.Principal{}, err
	}
	if !req.Role.Valid() {
		return model.Principal{}, fmt.Errorf("unknown role %q: %w", req.Role, errs.ErrValidation)
	}
	p, err := s.auth.newPrincipal(req.Email, req.Secret, req.Name, req.Role)
	if err != nil {
		return model.Principal{}, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return model.Principal{}, err
	}
	s.log.Info("principal created",
		zap.Stringer("principal_id", p.ID), zap.String("role", string(p.Role)), zap.Stringer("by", caller.ID))
	return *p, nil
}

// Get loads any account by id.
func (s *PrincipalServiceImpl) Get(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.Principal, error) {
	if err := s.admin(caller); err != nil {
		return model.Principal{}, err
	}
	return deref(s.repo.GetByID(ctx, id))
}

// ListByRole lists active accounts with role.
func (s *PrincipalServiceImpl) ListByRole(ctx context.Context, caller policy.Caller, role model.Role) ([]model.Principal, error) {
	if err := s.admin(caller); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, errs.ErrValidation)
	}
	return s.repo.ListByRole(ctx, role)
}

// Update changes email and/or name.
func (s *PrincipalServiceImpl) Update(ctx context.Context, caller policy.Caller, id uuid.UUID, upd model.PrincipalUpdate) (model.Principal, error) {
	if err := s.admin(caller); err != nil {
		return model.Principal{}, err
	}
	if upd.Email == nil && upd.Name == nil {
		return model.Principal{}, fmt.Errorf("nothing to update: %w", errs.ErrValidation)
	}
	if upd.Email != nil {
		e, err := normalizeEmail(*upd.Email)
		if err != nil {
			return model.Principal{}, err
		}
		upd.Email = &e
	}
	if upd.Name != nil {
		n, err := required("name", *upd.Name)
		if err != nil {
			return model.Principal{}, err
		}
		upd.Name = &n
	}
	return deref(s.repo.Update(ctx, id, upd))
}

// Deactivate soft-disables an account.
func (s *PrincipalServiceImpl) Deactivate(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.Principal, error) {
	return s.SetStatus(ctx, caller, id, false)
}

// SetStatus activates or deactivates an account. Admins cannot lock themselves out.
func (s *PrincipalServiceImpl) SetStatus(ctx context.Context, caller policy.Caller, id uuid.UUID, active bool) (model.Principal, error) {
	if err := s.admin(caller); err != nil {
		return model.Principal{}, err
	}
	if !active && id == caller.ID {
		return model.Principal{}, fmt.Errorf("cannot deactivate own account: %w", errs.ErrValidation)
	}
	p, err := deref(s.repo.SetActive(ctx, id, active))
	if err != nil {
		return model.Principal{}, err
	}
	s.log.Info("principal status changed",
		zap.Stringer("principal_id", id), zap.Bool("active", active), zap.Stringer("by", caller.ID))
	return p, nil
}

// ChangeRole assigns a new role. Admins cannot demote themselves.
func (s *PrincipalServiceImpl) ChangeRole(ctx context.Context, caller policy.Caller, id uuid.UUID, role model.Role) (model.Principal, error) {
	if err := s.admin(caller); err != nil {
		return model.Principal{}, err
	}
	if !role.Valid() {
		return model.Principal{}, fmt.Errorf("unknown role %q: %w", role, errs.ErrValidation)
	}
	if id == caller.ID && role != model.RoleAdmin {
		return model.Principal{}, fmt.Errorf("cannot change own role: %w", errs.ErrValidation)
	}
	p, err := deref(s.repo.SetRole(ctx, id, role))
	if err != nil {
		return model.Principal{}, err
	}
	s.log.Info("principal role changed",
		zap.Stringer("principal_id", id), zap.String("role", string(role)), zap.Stringer("by", caller.ID))
	return p, nil
}

func (s *PrincipalServiceImpl) admin(caller policy.Caller) error {
	_, err := policy.Authorize(policy.OpManagePrincipals, caller, policy.RelNone)
	return err
}

func deref[T any](v *T, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return *v, nil
}
