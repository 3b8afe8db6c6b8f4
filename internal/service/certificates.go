package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/integrity"
	"github.com/and161185/certvault/internal/ledger"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/policy"
	"github.com/and161185/certvault/internal/repository"
)

// CertificateService is the certificate lifecycle: issue, verify, revoke and queries.
// It returns full records; callers outside the process go through CertificateAccess.
type CertificateService interface {
	// Issue validates req, anchors it on the ledger and stores it for issuerID.
	Issue(ctx context.Context, req model.IssueRequest, issuerID uuid.UUID) (*model.Certificate, error)
	// Verify looks up identifier (hash or reference id) and reports its status.
	Verify(ctx context.Context, identifier string) (model.Verification, error)
	// Revoke invalidates a certificate if caller may do so.
	Revoke(ctx context.Context, certID uuid.UUID, caller policy.Caller) (*model.Certificate, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Certificate, error)
	ListByRecipient(ctx context.Context, email string) ([]model.Certificate, error)
	ListByIssuer(ctx context.Context, issuerID uuid.UUID) ([]model.Certificate, error)
}

type CertificateServiceImpl struct {
	certs      repository.CertificateRepository
	principals repository.PrincipalRepository
	ledger     ledger.Ledger
	now        func() time.Time
	log        *zap.Logger
}

var _ CertificateService = (*CertificateServiceImpl)(nil)

// NewCertificateService constructs the lifecycle engine.
func NewCertificateService(
	certs repository.CertificateRepository,
	principals repository.PrincipalRepository,
	l ledger.Ledger,
	log *zap.Logger,
) *CertificateServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &CertificateServiceImpl{certs: certs, principals: principals, ledger: l, now: time.Now, log: log}
}

// Issue creates a certificate. The ledger is written before the store, so a
// ledger failure leaves nothing persisted. A concurrent duplicate loses on the
// store's unique constraint and surfaces as errs.ErrConflict.
func (s *CertificateServiceImpl) Issue(ctx context.Context, req model.IssueRequest, issuerID uuid.UUID) (*model.Certificate, error) {
	content, err := normalizeContent(req.CertificateContent)
	if err != nil {
		return nil, err
	}
	if err := s.checkRecipient(ctx, content.RecipientEmail); err != nil {
		return nil, err
	}

	c := &model.Certificate{
		Recipient:       content.Recipient,
		RecipientEmail:  content.RecipientEmail,
		Course:          content.Course,
		Grade:           content.Grade,
		IssueDate:       content.IssueDate,
		ExpirationDate:  content.ExpirationDate,
		RequiresRenewal: req.RequiresRenewal,
		IssuerID:        issuerID,
		Valid:           true,
		Metadata:        content.Metadata,
	}
	// hash the record's own content; the stored row must reproduce it
	payload, err := integrity.Canonicalize(c.Content())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	hash, err := integrity.ComputeHash(c.Content())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	switch _, err := s.certs.GetByHash(ctx, hash); {
	case err == nil:
		return nil, fmt.Errorf("certificate with identical content exists: %w", errs.ErrConflict)
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}

	ref, err := s.ledger.Record(ctx, hash, payload)
	if err != nil {
		s.log.Warn("ledger record failed", zap.String("hash", hash), zap.Error(err))
		return nil, fmt.Errorf("%w: ledger record: %v", errs.ErrIntegration, err)
	}

	if c.ID, err = uuid.NewV4(); err != nil {
		return nil, err
	}
	c.Hash = hash
	c.ReferenceID = ref
	if err := s.certs.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("certificate issued",
		zap.Stringer("certificate_id", c.ID), zap.String("hash", hash), zap.Stringer("issuer_id", issuerID))
	return c, nil
}

// Verify checks, in order: existence, ledger anchoring, expiry, revocation.
func (s *CertificateServiceImpl) Verify(ctx context.Context, identifier string) (model.Verification, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return model.Verification{}, fmt.Errorf("identifier is required: %w", errs.ErrValidation)
	}
	if h := strings.ToLower(identifier); integrity.LooksLikeHash(h) {
		identifier = h
	}
	now := s.now()
	res := func(reason model.VerifyReason, c *model.Certificate) model.Verification {
		return model.Verification{Valid: reason == model.ReasonValid, Reason: reason, Certificate: c, VerifiedAt: now}
	}

	c, err := s.certs.GetByIdentifier(ctx, identifier)
	if errors.Is(err, errs.ErrNotFound) {
		return res(model.ReasonNotFound, nil), nil
	}
	if err != nil {
		return model.Verification{}, err
	}

	ok, err := s.ledger.Confirm(ctx, c.ReferenceID)
	if err != nil {
		s.log.Warn("ledger confirm failed", zap.Stringer("certificate_id", c.ID), zap.Error(err))
	}
	switch {
	case err != nil || !ok:
		return res(model.ReasonLedgerFailed, c), nil
	case c.Expired(now):
		return res(model.ReasonExpired, c), nil
	case !c.Valid:
		return res(model.ReasonRevoked, c), nil
	}
	return res(model.ReasonValid, c), nil
}

// Revoke persists valid=false, then tells the ledger. The store is
// authoritative; a ledger failure is only logged. Revoking twice succeeds.
func (s *CertificateServiceImpl) Revoke(ctx context.Context, certID uuid.UUID, caller policy.Caller) (*model.Certificate, error) {
	c, err := s.certs.GetByID(ctx, certID)
	if err != nil {
		return nil, err
	}
	rel := policy.RelNone
	if !caller.Anonymous() && caller.ID == c.IssuerID {
		rel = policy.RelOwner
	}
	if _, err := policy.Authorize(policy.OpRevoke, caller, rel); err != nil {
		return nil, err
	}

	updated, err := s.certs.Revoke(ctx, certID)
	if err != nil {
		return nil, err
	}
	if ok, err := s.ledger.Invalidate(ctx, updated.ReferenceID); err != nil || !ok {
		s.log.Warn("ledger invalidate failed",
			zap.Stringer("certificate_id", certID), zap.String("reference_id", updated.ReferenceID), zap.Error(err))
	}
	s.log.Info("certificate revoked",
		zap.Stringer("certificate_id", certID), zap.Stringer("by", caller.ID), zap.String("role", string(caller.Role)))
	return updated, nil
}

// Get loads a certificate by id.
func (s *CertificateServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	return s.certs.GetByID(ctx, id)
}

// ListByRecipient lists certificates for a recipient email, newest first.
func (s *CertificateServiceImpl) ListByRecipient(ctx context.Context, email string) ([]model.Certificate, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.certs.ListByRecipient(ctx, email)
}

// ListByIssuer lists certificates issued by issuerID, newest first.
func (s *CertificateServiceImpl) ListByIssuer(ctx context.Context, issuerID uuid.UUID) ([]model.Certificate, error) {
	if issuerID == uuid.Nil {
		return nil, fmt.Errorf("issuer id is required: %w", errs.ErrValidation)
	}
	return s.certs.ListByIssuer(ctx, issuerID)
}

// checkRecipient requires an active principal with role recipient.
func (s *CertificateServiceImpl) checkRecipient(ctx context.Context, email string) error {
	p, err := s.principals.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return fmt.Errorf("recipient %s is not registered: %w", email, errs.ErrValidation)
	case err != nil:
		return err
	case !p.Active:
		return fmt.Errorf("recipient %s is inactive: %w", email, errs.ErrValidation)
	case p.Role != model.RoleRecipient:
		return fmt.Errorf("%s is not a recipient: %w", email, errs.ErrValidation)
	}
	return nil
}

// normalizeContent trims text, lowercases the email, truncates dates to the
// store's microsecond precision and checks required fields and dates.
func normalizeContent(in model.CertificateContent) (model.CertificateContent, error) {
	var (
		out model.CertificateContent
		err error
	)
	if out.Recipient, err = required("recipient", in.Recipient); err != nil {
		return out, err
	}
	if out.RecipientEmail, err = normalizeEmail(in.RecipientEmail); err != nil {
		return out, err
	}
	if out.Course, err = required("course", in.Course); err != nil {
		return out, err
	}
	if out.Grade, err = required("grade", in.Grade); err != nil {
		return out, err
	}
	if in.IssueDate.IsZero() {
		return out, fmt.Errorf("issue date is required: %w", errs.ErrValidation)
	}
	out.IssueDate = in.IssueDate.UTC().Truncate(time.Microsecond)
	if in.ExpirationDate != nil {
		exp := in.ExpirationDate.UTC().Truncate(time.Microsecond)
		if !exp.After(out.IssueDate) {
			return out, fmt.Errorf("expiration date must be after issue date: %w", errs.ErrValidation)
		}
		out.ExpirationDate = &exp
	}
	if len(in.Metadata) > 0 {
		if err := checkMetadata(in.Metadata); err != nil {
			return out, err
		}
		out.Metadata = in.Metadata
	}
	return out, nil
}
