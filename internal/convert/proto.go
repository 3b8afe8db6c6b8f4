// Package convert maps domain types to and from the google.protobuf.Struct
// documents exchanged over gRPC.
package convert

import (
	"fmt"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/model"
)

// DateLayout is accepted for dates without a time of day.
const DateLayout = "2006-01-02"

// --- helpers ---

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func invalid(key, reason string) error {
	return fmt.Errorf("%s: %s: %w", key, reason, errs.ErrValidation)
}

// ParseTime accepts RFC 3339 timestamps and plain dates.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Struct builds a response document.
func Struct(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(m)
}

// --- request fields ---

// Fields reads typed values from a request document. Missing keys and
// explicit nulls read as absent.
type Fields struct {
	m map[string]*structpb.Value
}

// Args wraps in. A nil document has no fields.
func Args(in *structpb.Struct) Fields {
	return Fields{m: in.GetFields()}
}

func (f Fields) value(key string) (*structpb.Value, bool) {
	v, ok := f.m[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

// Has reports whether key is present and not null.
func (f Fields) Has(key string) bool {
	_, ok := f.value(key)
	return ok
}

// String returns a string field; absent reads as "".
func (f Fields) String(key string) (string, error) {
	v, ok := f.value(key)
	if !ok {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", invalid(key, "must be a string")
	}
	return s.StringValue, nil
}

// OptString returns nil when key is absent.
func (f Fields) OptString(key string) (*string, error) {
	if !f.Has(key) {
		return nil, nil
	}
	s, err := f.String(key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Bool returns a bool field; absent reads as false.
func (f Fields) Bool(key string) (bool, error) {
	v, ok := f.value(key)
	if !ok {
		return false, nil
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, invalid(key, "must be a boolean")
	}
	return b.BoolValue, nil
}

// UUID parses a required id field.
func (f Fields) UUID(key string) (u.UUID, error) {
	s, err := f.String(key)
	if err != nil {
		return u.Nil, err
	}
	if s == "" {
		return u.Nil, invalid(key, "is required")
	}
	var id u.UUID
	if err := id.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return u.Nil, invalid(key, "must be a UUID")
	}
	return id, nil
}

// Time parses a required date field.
func (f Fields) Time(key string) (time.Time, error) {
	t, err := f.OptTime(key)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, invalid(key, "is required")
	}
	return *t, nil
}

// OptTime parses an optional date field.
func (f Fields) OptTime(key string) (*time.Time, error) {
	s, err := f.String(key)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, invalid(key, "must be an RFC 3339 date")
	}
	return &t, nil
}

// Object returns a nested object field as a plain map.
func (f Fields) Object(key string) (map[string]any, error) {
	v, ok := f.value(key)
	if !ok {
		return nil, nil
	}
	s, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, invalid(key, "must be an object")
	}
	return s.StructValue.AsMap(), nil
}

// --- principals ---

// FromPrincipal renders a principal. The secret hash is never included.
func FromPrincipal(p model.Principal) map[string]any {
	return map[string]any{
		"id":        p.ID.String(),
		"email":     p.Email,
		"name":      p.Name,
		"role":      string(p.Role),
		"active":    p.Active,
		"createdAt": ts(p.CreatedAt),
		"updatedAt": ts(p.UpdatedAt),
	}
}

// FromPrincipals renders a listing under "principals".
func FromPrincipals(ps []model.Principal) map[string]any {
	out := make([]any, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromPrincipal(p))
	}
	return map[string]any{"principals": out}
}

// FromSession renders a principal with its access token.
func FromSession(p model.Principal, t model.Tokens) map[string]any {
	return map[string]any{
		"principal":   FromPrincipal(p),
		"accessToken": t.AccessToken,
		"expiresAt":   ts(t.ExpiresAt),
	}
}

// ToRole parses the "role" field. Absent reads as "".
func ToRole(f Fields) (model.Role, error) {
	s, err := f.String("role")
	if err != nil || s == "" {
		return "", err
	}
	r := model.Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", invalid("role", "unknown role")
	}
	return r, nil
}

// ToPrincipalUpdate reads optional email and name.
func ToPrincipalUpdate(f Fields) (model.PrincipalUpdate, error) {
	email, err := f.OptString("email")
	if err != nil {
		return model.PrincipalUpdate{}, err
	}
	name, err := f.OptString("name")
	if err != nil {
		return model.PrincipalUpdate{}, err
	}
	return model.PrincipalUpdate{Email: email, Name: name}, nil
}

// --- certificates ---

// ToIssueRequest parses an issue request document.
func ToIssueRequest(in *structpb.Struct) (model.IssueRequest, error) {
	f := Args(in)
	var req model.IssueRequest
	var err error
	strs := []struct {
		key string
		dst *string
	}{
		{"recipient", &req.Recipient},
		{"recipientEmail", &req.RecipientEmail},
		{"course", &req.Course},
		{"grade", &req.Grade},
	}
	for _, s := range strs {
		if *s.dst, err = f.String(s.key); err != nil {
			return model.IssueRequest{}, err
		}
	}
	if req.IssueDate, err = f.Time("issueDate"); err != nil {
		return model.IssueRequest{}, err
	}
	if req.ExpirationDate, err = f.OptTime("expirationDate"); err != nil {
		return model.IssueRequest{}, err
	}
	if req.RequiresRenewal, err = f.Bool("requiresRenewal"); err != nil {
		return model.IssueRequest{}, err
	}
	if req.Metadata, err = f.Object("metadata"); err != nil {
		return model.IssueRequest{}, err
	}
	return req, nil
}

// FromCertificateView renders a redacted certificate. Limited views carry
// only recipient, course, validity and issue date.
func FromCertificateView(v model.CertificateView) map[string]any {
	out := map[string]any{
		"recipient": v.Recipient,
		"course":    v.Course,
		"valid":     v.Valid,
		"issueDate": ts(v.IssueDate),
	}
	d := v.Detail
	if d == nil {
		return out
	}
	out["id"] = d.ID.String()
	out["recipientEmail"] = d.RecipientEmail
	out["grade"] = d.Grade
	out["requiresRenewal"] = d.RequiresRenewal
	out["hash"] = d.Hash
	out["referenceId"] = d.ReferenceID
	out["issuerId"] = d.IssuerID.String()
	out["createdAt"] = ts(d.CreatedAt)
	out["updatedAt"] = ts(d.UpdatedAt)
	if d.ExpirationDate != nil {
		out["expirationDate"] = ts(*d.ExpirationDate)
	} else {
		out["expirationDate"] = nil
	}
	if len(d.Metadata) > 0 {
		out["metadata"] = d.Metadata
	}
	return out
}

// FromCertificateViews renders a listing under "certificates".
func FromCertificateViews(vs []model.CertificateView) map[string]any {
	out := make([]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, FromCertificateView(v))
	}
	return map[string]any{"certificates": out}
}

// FromVerification renders a verification result.
func FromVerification(v model.VerificationView) map[string]any {
	out := map[string]any{
		"valid":      v.Valid,
		"reason":     string(v.Reason),
		"message":    v.Reason.Message(),
		"verifiedAt": ts(v.VerifiedAt),
	}
	if v.Certificate != nil {
		out["certificate"] = FromCertificateView(*v.Certificate)
	}
	return out
}
