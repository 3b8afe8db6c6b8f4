package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/integrity"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/repository"
)

const principalColumns = `id, email, secret_hash, name, role, active, created_at, updated_at`

// PrincipalRepo implements PrincipalRepository using PostgreSQL.
type PrincipalRepo struct{ db *DB }

var _ repository.PrincipalRepository = (*PrincipalRepo)(nil)

// NewPrincipalRepo constructs a principal repository.
func NewPrincipalRepo(db *DB) *PrincipalRepo { return &PrincipalRepo{db: db} }

// Create inserts a new principal row and fills its timestamps.
func (r *PrincipalRepo) Create(ctx context.Context, p *model.Principal) error {
	const q = `
INSERT INTO principals (id, email, secret_hash, name, role, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	p.Email = integrity.NormalizeEmail(p.Email)
	err := r.db.Pool.QueryRow(ctx, q, p.ID, p.Email, p.SecretHash, p.Name, string(p.Role), p.Active).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("principal %s: %w", p.Email, errs.ErrConflict)
	case isCheckViolation(err):
		return fmt.Errorf("principal %s: %w", p.Email, errs.ErrValidation)
	}
	return err
}

// GetByID selects a principal by ID.
func (r *PrincipalRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Principal, error) {
	const q = `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return scanPrincipal(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects a principal by lowercased email.
func (r *PrincipalRepo) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	const q = `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`
	return scanPrincipal(r.db.Pool.QueryRow(ctx, q, integrity.NormalizeEmail(email)))
}

// ListByRole returns active principals with role, newest first.
func (r *PrincipalRepo) ListByRole(ctx context.Context, role model.Role) ([]model.Principal, error) {
	const q = `SELECT ` + principalColumns + `
FROM principals
WHERE role = $1 AND active
ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Principal, 0, 8)
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update sets email and/or name. Nil fields keep their stored value.
func (r *PrincipalRepo) Update(ctx context.Context, id uuid.UUID, upd model.PrincipalUpdate) (*model.Principal, error) {
	const q = `
UPDATE principals
SET email = COALESCE($2, email), name = COALESCE($3, name), updated_at = now()
WHERE id = $1
RETURNING ` + principalColumns
	var email *string
	if upd.Email != nil {
		e := integrity.NormalizeEmail(*upd.Email)
		email = &e
	}
	p, err := scanPrincipal(r.db.Pool.QueryRow(ctx, q, id, email, upd.Name))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("principal email: %w", errs.ErrConflict)
	}
	return p, err
}

// SetActive flips the active flag.
func (r *PrincipalRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (*model.Principal, error) {
	const q = `
UPDATE principals SET active = $2, updated_at = now()
WHERE id = $1
RETURNING ` + principalColumns
	return scanPrincipal(r.db.Pool.QueryRow(ctx, q, id, active))
}

// SetRole changes the role.
func (r *PrincipalRepo) SetRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.Principal, error) {
	const q = `
UPDATE principals SET role = $2, updated_at = now()
WHERE id = $1
RETURNING ` + principalColumns
	return scanPrincipal(r.db.Pool.QueryRow(ctx, q, id, string(role)))
}

func scanPrincipal(row pgx.Row) (*model.Principal, error) {
	var (
		p    model.Principal
		role string
	)
	err := row.Scan(&p.ID, &p.Email, &p.SecretHash, &p.Name, &role, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	p.Role = model.Role(role)
	return &p, nil
}
