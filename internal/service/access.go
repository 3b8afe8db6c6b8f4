package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/policy"
)

// CertificateAccess applies the authorization policy around the lifecycle
// engine. Every certificate it returns has been redacted for the caller.
type CertificateAccess struct {
	engine CertificateService
}

// NewCertificateAccess wraps engine.
func NewCertificateAccess(engine CertificateService) *CertificateAccess {
	return &CertificateAccess{engine: engine}
}

// Issue issues a certificate owned by the caller.
func (a *CertificateAccess) Issue(ctx context.Context, caller policy.Caller, req model.IssueRequest) (model.CertificateView, error) {
	if _, err := policy.Authorize(policy.OpIssue, caller, policy.RelNone); err != nil {
		return model.CertificateView{}, err
	}
	c, err := a.engine.Issue(ctx, req, caller.ID)
	if err != nil {
		return model.CertificateView{}, err
	}
	return policy.View(policy.OpGetCertificate, caller, c)
}

// Verify is open to anonymous callers, who get the limited view.
func (a *CertificateAccess) Verify(ctx context.Context, caller policy.Caller, identifier string) (model.VerificationView, error) {
	v, err := a.engine.Verify(ctx, identifier)
	if err != nil {
		return model.VerificationView{}, err
	}
	out := model.VerificationView{Valid: v.Valid, Reason: v.Reason, VerifiedAt: v.VerifiedAt}
	if v.Certificate == nil {
		if _, err := policy.Authorize(policy.OpVerify, caller, policy.RelNone); err != nil {
			return model.VerificationView{}, err
		}
		return out, nil
	}
	view, err := policy.View(policy.OpVerify, caller, v.Certificate)
	if err != nil {
		return model.VerificationView{}, err
	}
	out.Certificate = &view
	return out, nil
}

// Get returns one certificate. Anonymous callers are rejected before the store is read.
func (a *CertificateAccess) Get(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.CertificateView, error) {
	if _, err := policy.Authorize(policy.OpGetCertificate, caller, policy.RelNone); err != nil {
		return model.CertificateView{}, err
	}
	c, err := a.engine.Get(ctx, id)
	if err != nil {
		return model.CertificateView{}, err
	}
	return policy.View(policy.OpGetCertificate, caller, c)
}

// ListByRecipient lists certificates of a recipient email.
func (a *CertificateAccess) ListByRecipient(ctx context.Context, caller policy.Caller, email string) ([]model.CertificateView, error) {
	if _, err := policy.Authorize(policy.OpListByRecipient, caller, policy.RecipientScope(caller, email)); err != nil {
		return nil, err
	}
	cs, err := a.engine.ListByRecipient(ctx, email)
	if err != nil {
		return nil, err
	}
	return a.views(caller, cs)
}

// ListByIssuer lists certificates issued by issuerID. Issuers may only list their own.
func (a *CertificateAccess) ListByIssuer(ctx context.Context, caller policy.Caller, issuerID uuid.UUID) ([]model.CertificateView, error) {
	if _, err := policy.Authorize(policy.OpListByIssuer, caller, policy.IDScope(caller, issuerID)); err != nil {
		return nil, err
	}
	cs, err := a.engine.ListByIssuer(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	return a.views(caller, cs)
}

// Revoke revokes a certificate; the engine enforces ownership.
func (a *CertificateAccess) Revoke(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.CertificateView, error) {
	if caller.Anonymous() {
		if _, err := policy.Authorize(policy.OpRevoke, caller, policy.RelNone); err != nil {
			return model.CertificateView{}, err
		}
	}
	c, err := a.engine.Revoke(ctx, id, caller)
	if err != nil {
		return model.CertificateView{}, err
	}
	return policy.View(policy.OpGetCertificate, caller, c)
}

// views redacts each certificate with the same rule a single get would use.
func (a *CertificateAccess) views(caller policy.Caller, cs []model.Certificate) ([]model.CertificateView, error) {
	out := make([]model.CertificateView, 0, len(cs))
	for i := range cs {
		v, err := policy.View(policy.OpGetCertificate, caller, &cs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
