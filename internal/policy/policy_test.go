package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/model"
)

func caller(role model.Role, email string) Caller {
	return Caller{ID: uuid.Must(uuid.NewV4()), Email: email, Role: role}
}

func cert(issuer uuid.UUID) *model.Certificate {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Certificate{
		ID:             uuid.Must(uuid.NewV4()),
		Recipient:      "Alice",
		RecipientEmail: "alice@x.com",
		Course:         "Go",
		Grade:          "A",
		IssueDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpirationDate: &exp,
		Hash:           "h",
		ReferenceID:    "r",
		IssuerID:       issuer,
		Valid:          true,
	}
}

func TestAuthorize_Matrix(t *testing.T) {
	t.Parallel()

	anon := Caller{}
	admin := caller(model.RoleAdmin, "admin@x.com")
	issuer := caller(model.RoleIssuer, "issuer@x.com")
	verifier := caller(model.RoleVerifier, "v@x.com")
	recipient := caller(model.RoleRecipient, "alice@x.com")

	cases := []struct {
		name    string
		op      Operation
		c       Caller
		rel     Relationship
		want    Tier
		wantErr error
	}{
		{"admin issues", OpIssue, admin, RelNone, TierFull, nil},
		{"issuer issues", OpIssue, issuer, RelNone, TierSelfScoped, nil},
		{"verifier cannot issue", OpIssue, verifier, RelNone, "", errs.ErrForbidden},
		{"recipient cannot issue", OpIssue, recipient, RelNone, "", errs.ErrForbidden},
		{"anonymous cannot issue", OpIssue, anon, RelNone, "", errs.ErrUnauthorized},

		{"admin revokes any", OpRevoke, admin, RelNone, TierFull, nil},
		{"issuer revokes own", OpRevoke, issuer, RelOwner, TierSelfScoped, nil},
		{"issuer cannot revoke foreign", OpRevoke, issuer, RelNone, "", errs.ErrForbidden},
		{"verifier cannot revoke", OpRevoke, verifier, RelNone, "", errs.ErrForbidden},

		{"anonymous verify limited", OpVerify, anon, RelNone, TierLimited, nil},
		{"verifier verify full", OpVerify, verifier, RelNone, TierFull, nil},
		{"recipient verify own full", OpVerify, recipient, RelRecipient, TierFull, nil},
		{"recipient verify foreign limited", OpVerify, recipient, RelNone, TierLimited, nil},
		{"issuer verify own self-scoped", OpVerify, issuer, RelOwner, TierSelfScoped, nil},
		{"issuer verify foreign limited", OpVerify, issuer, RelNone, TierLimited, nil},

		{"anonymous cannot get", OpGetCertificate, anon, RelNone, "", errs.ErrUnauthorized},
		{"admin get full", OpGetCertificate, admin, RelNone, TierFull, nil},

		{"verifier lists any recipient", OpListByRecipient, verifier, RelNone, TierFull, nil},
		{"recipient lists self", OpListByRecipient, recipient, RelSelf, TierFull, nil},
		{"recipient cannot list others", OpListByRecipient, recipient, RelNone, "", errs.ErrForbidden},
		{"issuer lists own issued", OpListByIssuer, issuer, RelSelf, TierSelfScoped, nil},
		{"issuer cannot list other issuer", OpListByIssuer, issuer, RelNone, "", errs.ErrForbidden},
		{"verifier cannot list by issuer", OpListByIssuer, verifier, RelNone, "", errs.ErrForbidden},

		{"admin manages principals", OpManagePrincipals, admin, RelNone, TierFull, nil},
		{"issuer cannot manage principals", OpManagePrincipals, issuer, RelNone, "", errs.ErrForbidden},
		{"profile self", OpProfile, verifier, RelSelf, TierFull, nil},
		{"anonymous has no profile", OpProfile, anon, RelNone, "", errs.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Authorize(tc.op, tc.c, tc.rel)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("tier=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestRelationshipTo(t *testing.T) {
	t.Parallel()

	issuer := caller(model.RoleIssuer, "issuer@x.com")
	c := cert(issuer.ID)

	if got := RelationshipTo(issuer, c); got != RelOwner {
		t.Fatalf("owner: got %q", got)
	}
	if got := RelationshipTo(caller(model.RoleRecipient, "ALICE@x.com "), c); got != RelNone {
		// Caller emails are expected pre-normalized; FromClaims does that.
		t.Fatalf("raw caller email should not match: got %q", got)
	}
	rc := FromClaims(model.Claims{PrincipalID: uuid.Must(uuid.NewV4()), Email: "ALICE@x.com", Role: model.RoleRecipient})
	if got := RelationshipTo(rc, c); got != RelRecipient {
		t.Fatalf("recipient: got %q", got)
	}
	if got := RelationshipTo(Caller{}, c); got != RelNone {
		t.Fatalf("anonymous: got %q", got)
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	c := cert(uuid.Must(uuid.NewV4()))

	lim := Redact(TierLimited, c)
	if lim.Detail != nil {
		t.Fatalf("limited view must not carry detail")
	}
	if lim.Recipient != "Alice" || lim.Course != "Go" || !lim.Valid || !lim.IssueDate.Equal(c.IssueDate) {
		t.Fatalf("limited view fields: %+v", lim)
	}

	full := Redact(TierFull, c)
	if full.Detail == nil || full.Detail.Hash != "h" || full.Detail.IssuerID != c.IssuerID {
		t.Fatalf("full view detail: %+v", full.Detail)
	}
	*full.Detail.ExpirationDate = time.Time{}
	if c.ExpirationDate.IsZero() {
		t.Fatalf("redacted view must not alias the source certificate")
	}

	self := Redact(TierSelfScoped, c)
	if self.Detail == nil || self.Detail.ReferenceID != "r" {
		t.Fatalf("self-scoped view detail: %+v", self.Detail)
	}
}

func TestView_UniformAcrossPaths(t *testing.T) {
	t.Parallel()

	issuer := caller(model.RoleIssuer, "issuer@x.com")
	c := cert(issuer.ID)

	get, err := View(OpGetCertificate, issuer, c)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ver, err := View(OpVerify, issuer, c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if (get.Detail == nil) != (ver.Detail == nil) {
		t.Fatalf("owner must see the same tier on get and verify")
	}

	other := caller(model.RoleIssuer, "other@x.com")
	v, err := View(OpGetCertificate, other, c)
	if err != nil {
		t.Fatalf("foreign get: %v", err)
	}
	if v.Detail != nil {
		t.Fatalf("foreign issuer must get limited view")
	}
}
