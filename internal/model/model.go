// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the authorization role of a principal.
type Role string

// Known roles.
const (
	RoleIssuer    Role = "issuer"
	RoleVerifier  Role = "verifier"
	RoleAdmin     Role = "admin"
	RoleRecipient Role = "recipient"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleIssuer, RoleVerifier, RoleAdmin, RoleRecipient:
		return true
	}
	return false
}

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Claims are the verified contents of a bearer token.
type Claims struct {
	PrincipalID uuid.UUID
	Email       string
	Role        Role
	ExpiresAt   time.Time
}

// Principal represents an account. SecretHash is an encoded digest and is never exposed.
type Principal struct {
	ID         uuid.UUID // PK
	Email      string    // unique, lowercase
	SecretHash string
	Name       string
	Role       Role
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PrincipalUpdate carries optional profile changes; nil fields are left untouched.
type PrincipalUpdate struct {
	Email *string
	Name  *string
}

// CertificateContent is the semantic content of a certificate, the input of the integrity hash.
type CertificateContent struct {
	Recipient      string
	RecipientEmail string
	Course         string
	Grade          string
	IssueDate      time.Time
	ExpirationDate *time.Time
	Metadata       map[string]any
}

// IssueRequest is an issuer's intent to create a certificate.
type IssueRequest struct {
	CertificateContent
	RequiresRenewal bool
}

// Certificate is a stored certificate record.
type Certificate struct {
	ID              uuid.UUID
	Recipient       string
	RecipientEmail  string // lowercase
	Course          string
	Grade           string
	IssueDate       time.Time
	ExpirationDate  *time.Time
	RequiresRenewal bool
	Hash            string    // unique content hash
	ReferenceID     string    // unique ledger reference
	IssuerID        uuid.UUID // FK -> principals.id
	Valid           bool      // false once revoked, never reset
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Content returns the semantic content used for hashing.
func (c *Certificate) Content() CertificateContent {
	return CertificateContent{
		Recipient:      c.Recipient,
		RecipientEmail: c.RecipientEmail,
		Course:         c.Course,
		Grade:          c.Grade,
		IssueDate:      c.IssueDate,
		ExpirationDate: c.ExpirationDate,
		Metadata:       c.Metadata,
	}
}

// Expired reports whether the certificate is past its expiration date at now.
func (c *Certificate) Expired(now time.Time) bool {
	return c.ExpirationDate != nil && now.After(*c.ExpirationDate)
}

// CertificateView is what a caller is allowed to see of a certificate.
// Detail is nil for the limited view.
type CertificateView struct {
	Recipient string
	Course    string
	Valid     bool
	IssueDate time.Time
	Detail    *Certificate
}

// VerifyReason explains a verification outcome.
type VerifyReason string

// Verification outcomes in check order.
const (
	ReasonValid        VerifyReason = "valid"
	ReasonNotFound     VerifyReason = "not_found"
	ReasonLedgerFailed VerifyReason = "ledger_verification_failed"
	ReasonExpired      VerifyReason = "expired"
	ReasonRevoked      VerifyReason = "revoked"
)

// Message returns a human readable description of the reason.
func (r VerifyReason) Message() string {
	switch r {
	case ReasonValid:
		return "Certificate is valid"
	case ReasonNotFound:
		return "Certificate not found"
	case ReasonLedgerFailed:
		return "Certificate verification failed on ledger"
	case ReasonExpired:
		return "Certificate has expired"
	case ReasonRevoked:
		return "Certificate has been revoked"
	}
	return string(r)
}

// Verification is the engine's verification result. Certificate is nil when not found.
type Verification struct {
	Valid       bool
	Reason      VerifyReason
	Certificate *Certificate
	VerifiedAt  time.Time
}

// VerificationView is a verification result after redaction.
type VerificationView struct {
	Valid       bool
	Reason      VerifyReason
	Certificate *CertificateView
	VerifiedAt  time.Time
}
