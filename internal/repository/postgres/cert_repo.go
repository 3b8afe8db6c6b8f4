package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/integrity"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/repository"
)

const certificateColumns = `id, recipient, recipient_email, course, grade, issue_date, expiration_date,
requires_renewal, hash, reference_id, issuer_id, valid, metadata, created_at, updated_at`

// CertificateRepo implements CertificateRepository using PostgreSQL.
type CertificateRepo struct{ db *DB }

var _ repository.CertificateRepository = (*CertificateRepo)(nil)

// NewCertificateRepo constructs a certificate repository.
func NewCertificateRepo(db *DB) *CertificateRepo { return &CertificateRepo{db: db} }

// Create inserts c. The unique indexes on hash and reference_id decide races.
func (r *CertificateRepo) Create(ctx context.Context, c *model.Certificate) error {
	const q = `
INSERT INTO certificates (id, recipient, recipient_email, course, grade, issue_date, expiration_date,
    requires_renewal, hash, reference_id, issuer_id, valid, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at, updated_at`
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	c.RecipientEmail = integrity.NormalizeEmail(c.RecipientEmail)
	err = r.db.Pool.QueryRow(ctx, q,
		c.ID, c.Recipient, c.RecipientEmail, c.Course, c.Grade, c.IssueDate, c.ExpirationDate,
		c.RequiresRenewal, c.Hash, c.ReferenceID, c.IssuerID, c.Valid, meta,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("certificate %s: %w", c.Hash, errs.ErrConflict)
	}
	return err
}

// GetByID selects a certificate by ID.
func (r *CertificateRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	const q = `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	return scanCertificate(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByHash selects a certificate by content hash.
func (r *CertificateRepo) GetByHash(ctx context.Context, hash string) (*model.Certificate, error) {
	const q = `SELECT ` + certificateColumns + ` FROM certificates WHERE hash = $1`
	return scanCertificate(r.db.Pool.QueryRow(ctx, q, hash))
}

// GetByIdentifier selects a certificate by hash or ledger reference id.
func (r *CertificateRepo) GetByIdentifier(ctx context.Context, identifier string) (*model.Certificate, error) {
	const q = `SELECT ` + certificateColumns + `
FROM certificates
WHERE hash = $1 OR reference_id = $1
LIMIT 1`
	return scanCertificate(r.db.Pool.QueryRow(ctx, q, identifier))
}

// ListByRecipient returns certificates for a recipient email, newest first.
func (r *CertificateRepo) ListByRecipient(ctx context.Context, email string) ([]model.Certificate, error) {
	const q = `SELECT ` + certificateColumns + `
FROM certificates
WHERE recipient_email = $1
ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, integrity.NormalizeEmail(email))
}

// ListByIssuer returns certificates issued by issuerID, newest first.
func (r *CertificateRepo) ListByIssuer(ctx context.Context, issuerID uuid.UUID) ([]model.Certificate, error) {
	const q = `SELECT ` + certificateColumns + `
FROM certificates
WHERE issuer_id = $1
ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, issuerID)
}

// Revoke marks the certificate invalid. updated_at only moves on the first revoke.
func (r *CertificateRepo) Revoke(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	const q = `
UPDATE certificates
SET valid = false, updated_at = CASE WHEN valid THEN now() ELSE updated_at END
WHERE id = $1
RETURNING ` + certificateColumns
	return scanCertificate(r.db.Pool.QueryRow(ctx, q, id))
}

func (r *CertificateRepo) list(ctx context.Context, q string, arg any) ([]model.Certificate, error) {
	rows, err := r.db.Pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Certificate, 0, 8)
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCertificate(row pgx.Row) (*model.Certificate, error) {
	var (
		c    model.Certificate
		exp  pgtype.Timestamptz
		meta []byte
	)
	err := row.Scan(
		&c.ID, &c.Recipient, &c.RecipientEmail, &c.Course, &c.Grade, &c.IssueDate, &exp,
		&c.RequiresRenewal, &c.Hash, &c.ReferenceID, &c.IssuerID, &c.Valid, &meta, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if exp.Valid {
		t := exp.Time
		c.ExpirationDate = &t
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

// encodeMetadata returns nil for empty metadata so the column stays NULL.
func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}
