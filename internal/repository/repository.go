// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/certvault/internal/model"
)

// PrincipalRepository stores accounts. Email is the case-insensitive identity key.
type PrincipalRepository interface {
	// Create inserts a new principal. Returns errs.ErrConflict if the email is taken.
	Create(ctx context.Context, p *model.Principal) error
	// GetByID loads a principal by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Principal, error)
	// GetByEmail loads a principal by email, compared lowercase.
	GetByEmail(ctx context.Context, email string) (*model.Principal, error)
	// ListByRole returns active principals with the given role, newest first.
	ListByRole(ctx context.Context, role model.Role) ([]model.Principal, error)
	// Update applies non-nil fields of upd and returns the stored row.
	Update(ctx context.Context, id uuid.UUID, upd model.PrincipalUpdate) (*model.Principal, error)
	// SetActive flips the active flag.
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*model.Principal, error)
	// SetRole changes the principal's role.
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.Principal, error)
}

// CertificateRepository stores certificates. Rows are never deleted.
type CertificateRepository interface {
	// Create inserts c. Returns errs.ErrConflict on a duplicate hash or reference id.
	Create(ctx context.Context, c *model.Certificate) error
	// GetByID loads a certificate by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Certificate, error)
	// GetByHash loads a certificate by content hash.
	GetByHash(ctx context.Context, hash string) (*model.Certificate, error)
	// GetByIdentifier loads a certificate whose hash or reference id equals identifier.
	GetByIdentifier(ctx context.Context, identifier string) (*model.Certificate, error)
	// ListByRecipient returns certificates for a recipient email, newest first.
	ListByRecipient(ctx context.Context, email string) ([]model.Certificate, error)
	// ListByIssuer returns certificates issued by issuerID, newest first.
	ListByIssuer(ctx context.Context, issuerID uuid.UUID) ([]model.Certificate, error)
	// Revoke sets valid=false and returns the updated row. Revoking twice is not an error.
	Revoke(ctx context.Context, id uuid.UUID) (*model.Certificate, error)
}
