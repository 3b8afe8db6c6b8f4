// Package integrity computes the content hash that identifies a certificate's
// semantic content. The hash doubles as the duplicate-issuance guard: two
// logically identical certificates always produce the same digest.
package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/certvault/internal/model"
)

// HashLen is the length of a hex encoded digest.
const HashLen = sha256.Size * 2

// canonicalContent fixes the field order of the serialized content.
type canonicalContent struct {
	Recipient      string         `json:"recipient"`
	RecipientEmail string         `json:"recipientEmail"`
	Course         string         `json:"course"`
	Grade          string         `json:"grade"`
	IssueDate      string         `json:"issueDate"`
	ExpirationDate *string        `json:"expirationDate"`
	Metadata       map[string]any `json:"metadata"`
}

// Canonicalize returns the canonical byte form of content.
//
// Text fields are trimmed, the recipient email is lowercased, dates are
// rendered in UTC RFC 3339 at microsecond precision (the
// precision the store keeps), and empty metadata is null.
// Metadata map keys are emitted in sorted order at every nesting level.
func Canonicalize(content model.CertificateContent) ([]byte, error) {
	cc := canonicalContent{
		Recipient:      strings.TrimSpace(content.Recipient),
		RecipientEmail: NormalizeEmail(content.RecipientEmail),
		Course:         strings.TrimSpace(content.Course),
		Grade:          strings.TrimSpace(content.Grade),
		IssueDate:      formatTime(content.IssueDate),
	}
	if content.ExpirationDate != nil {
		s := formatTime(*content.ExpirationDate)
		cc.ExpirationDate = &s
	}
	if len(content.Metadata) > 0 {
		cc.Metadata = content.Metadata
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cc); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeHash returns the lowercase hex SHA-256 of the canonical content.
func ComputeHash(content model.CertificateContent) (string, error) {
	b, err := Canonicalize(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// LooksLikeHash reports whether s has the shape of a content hash.
func LooksLikeHash(s string) bool {
	if len(s) != HashLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}
