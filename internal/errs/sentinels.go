// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrValidation indicates malformed or missing input, or a referenced
	// entity in the wrong state (e.g. recipient with a non-recipient role).
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a uniqueness violation (email, content hash, reference id).
	ErrConflict = errors.New("conflict")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an authenticated caller that is not entitled to the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized indicates missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIntegration indicates the ledger seam was unreachable or answered negatively.
	ErrIntegration = errors.New("integration failure")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
