package service

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/integrity"
)

// normalizeEmail lowercases email and checks it is a bare address.
func normalizeEmail(email string) (string, error) {
	e := integrity.NormalizeEmail(email)
	if e == "" {
		return "", fmt.Errorf("email is required: %w", errs.ErrValidation)
	}
	if strings.ContainsRune(e, 0) {
		return "", fmt.Errorf("email contains NUL: %w", errs.ErrValidation)
	}
	a, err := mail.ParseAddress(e)
	if err != nil || a.Address != e {
		return "", fmt.Errorf("malformed email: %w", errs.ErrValidation)
	}
	return e, nil
}

func required(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s is required: %w", field, errs.ErrValidation)
	}
	if strings.ContainsRune(v, 0) {
		return "", fmt.Errorf("%s contains NUL: %w", field, errs.ErrValidation)
	}
	return v, nil
}

// checkMetadata rejects NUL in keys and string values at any depth;
// PostgreSQL text and jsonb cannot store it.
func checkMetadata(v any) error {
	switch t := v.(type) {
	case string:
		if strings.ContainsRune(t, 0) {
			return fmt.Errorf("metadata contains NUL: %w", errs.ErrValidation)
		}
	case map[string]any:
		for k, e := range t {
			if strings.ContainsRune(k, 0) {
				return fmt.Errorf("metadata key contains NUL: %w", errs.ErrValidation)
			}
			if err := checkMetadata(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := checkMetadata(e); err != nil {
				return err
			}
		}
	}
	return nil
}
