// Package policy decides what a caller may do with a certificate or principal
// and how much of a certificate the caller may see.
//
// All role checks go through one rule table keyed by (operation, role,
// relationship). A missing rule denies.
package policy

import (
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/integrity"
	"github.com/and161185/certvault/internal/model"
)

// Operation is a guarded action.
type Operation string

// Guarded operations.
const (
	OpIssue            Operation = "issue"
	OpRevoke           Operation = "revoke"
	OpGetCertificate   Operation = "get_certificate"
	OpVerify           Operation = "verify"
	OpListByRecipient  Operation = "list_by_recipient"
	OpListByIssuer     Operation = "list_by_issuer"
	OpManagePrincipals Operation = "manage_principals"
	OpProfile          Operation = "profile"
)

// Relationship is the caller's relation to the target resource.
type Relationship string

// Relationships.
const (
	RelNone      Relationship = "none"
	RelRecipient Relationship = "recipient" // caller email is the certificate's recipient email
	RelOwner     Relationship = "owner"     // caller issued the certificate
	RelSelf      Relationship = "self"      // caller targets its own email or id
	relAny       Relationship = "*"
)

// Tier is the redaction tier of a certificate view.
type Tier string

// View tiers.
const (
	TierLimited    Tier = "limited"
	TierSelfScoped Tier = "self_scoped"
	TierFull       Tier = "full"
)

// roleAnonymous keys rules for unauthenticated callers.
const roleAnonymous model.Role = "anonymous"

// Caller is the verified identity behind a request. The zero value is anonymous.
type Caller struct {
	ID    uuid.UUID
	Email string
	Role  model.Role
}

// FromClaims builds a caller from verified token claims.
func FromClaims(c model.Claims) Caller {
	return Caller{ID: c.PrincipalID, Email: integrity.NormalizeEmail(c.Email), Role: c.Role}
}

// Anonymous reports whether the caller is unauthenticated.
func (c Caller) Anonymous() bool { return c.ID == uuid.Nil }

func (c Caller) role() model.Role {
	if c.Anonymous() {
		return roleAnonymous
	}
	return c.Role
}

type rule struct {
	op   Operation
	role model.Role
	rel  Relationship
}

// rules maps (operation, role, relationship) to the granted tier.
var rules = map[rule]Tier{
	{OpIssue, model.RoleAdmin, relAny}:  TierFull,
	{OpIssue, model.RoleIssuer, relAny}: TierSelfScoped,

	{OpRevoke, model.RoleAdmin, relAny}:   TierFull,
	{OpRevoke, model.RoleIssuer, RelOwner}: TierSelfScoped,

	{OpGetCertificate, model.RoleAdmin, relAny}:           TierFull,
	{OpGetCertificate, model.RoleVerifier, relAny}:        TierFull,
	{OpGetCertificate, model.RoleRecipient, RelRecipient}: TierFull,
	{OpGetCertificate, model.RoleRecipient, relAny}:       TierLimited,
	{OpGetCertificate, model.RoleIssuer, RelRecipient}:    TierFull,
	{OpGetCertificate, model.RoleIssuer, RelOwner}:        TierSelfScoped,
	{OpGetCertificate, model.RoleIssuer, relAny}:          TierLimited,

	{OpVerify, roleAnonymous, relAny}:             TierLimited,
	{OpVerify, model.RoleAdmin, relAny}:           TierFull,
	{OpVerify, model.RoleVerifier, relAny}:        TierFull,
	{OpVerify, model.RoleRecipient, RelRecipient}: TierFull,
	{OpVerify, model.RoleRecipient, relAny}:       TierLimited,
	{OpVerify, model.RoleIssuer, RelRecipient}:    TierFull,
	{OpVerify, model.RoleIssuer, RelOwner}:        TierSelfScoped,
	{OpVerify, model.RoleIssuer, relAny}:          TierLimited,

	{OpListByRecipient, model.RoleAdmin, relAny}:      TierFull,
	{OpListByRecipient, model.RoleVerifier, relAny}:   TierFull,
	{OpListByRecipient, model.RoleRecipient, RelSelf}: TierFull,
	{OpListByRecipient, model.RoleIssuer, RelSelf}:    TierFull,

	{OpListByIssuer, model.RoleAdmin, relAny}:   TierFull,
	{OpListByIssuer, model.RoleIssuer, RelSelf}: TierSelfScoped,

	{OpManagePrincipals, model.RoleAdmin, relAny}: TierFull,

	{OpProfile, model.RoleAdmin, RelSelf}:     TierFull,
	{OpProfile, model.RoleIssuer, RelSelf}:    TierFull,
	{OpProfile, model.RoleVerifier, RelSelf}:  TierFull,
	{OpProfile, model.RoleRecipient, RelSelf}: TierFull,
}

// Authorize evaluates the rule table. A denied anonymous caller gets
// errs.ErrUnauthorized, a denied authenticated caller errs.ErrForbidden.
func Authorize(op Operation, c Caller, rel Relationship) (Tier, error) {
	role := c.role()
	if tier, ok := rules[rule{op, role, rel}]; ok {
		return tier, nil
	}
	if tier, ok := rules[rule{op, role, relAny}]; ok {
		return tier, nil
	}
	if c.Anonymous() {
		return "", fmt.Errorf("%s: %w", op, errs.ErrUnauthorized)
	}
	return "", fmt.Errorf("%s as %s: %w", op, role, errs.ErrForbidden)
}

// RelationshipTo returns the caller's relation to cert. Recipient wins over owner.
func RelationshipTo(c Caller, cert *model.Certificate) Relationship {
	if c.Anonymous() || cert == nil {
		return RelNone
	}
	if c.Email != "" && c.Email == integrity.NormalizeEmail(cert.RecipientEmail) {
		return RelRecipient
	}
	if c.ID == cert.IssuerID {
		return RelOwner
	}
	return RelNone
}

// RecipientScope is the caller's relation to a requested recipient email.
func RecipientScope(c Caller, email string) Relationship {
	if !c.Anonymous() && c.Email == integrity.NormalizeEmail(email) {
		return RelSelf
	}
	return RelNone
}

// IDScope is the caller's relation to a requested principal id.
func IDScope(c Caller, id uuid.UUID) Relationship {
	if !c.Anonymous() && c.ID == id {
		return RelSelf
	}
	return RelNone
}

// Redact returns the view of cert allowed by tier.
func Redact(tier Tier, cert *model.Certificate) model.CertificateView {
	v := model.CertificateView{
		Recipient: cert.Recipient,
		Course:    cert.Course,
		Valid:     cert.Valid,
		IssueDate: cert.IssueDate,
	}
	switch tier {
	case TierFull, TierSelfScoped:
		cp := *cert
		if cert.ExpirationDate != nil {
			exp := *cert.ExpirationDate
			cp.ExpirationDate = &exp
		}
		v.Detail = &cp
	}
	return v
}

// View authorizes op on cert for c and returns the redacted view.
func View(op Operation, c Caller, cert *model.Certificate) (model.CertificateView, error) {
	tier, err := Authorize(op, c, RelationshipTo(c, cert))
	if err != nil {
		return model.CertificateView{}, err
	}
	return Redact(tier, cert), nil
}
