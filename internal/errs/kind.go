package errs

import "errors"

// Kind is a stable, machine-checkable error category exposed to callers.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindConflict     Kind = "CONFLICT"
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindIntegration  Kind = "INTEGRATION_FAILURE"
	KindRateLimited  Kind = "RATE_LIMITED"
	KindInternal     Kind = "INTERNAL"
)

// KindOf classifies err by the first sentinel found in its chain.
// Unknown errors (including nil-safe misuse) are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrIntegration):
		return KindIntegration
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// Public reports whether the error message is safe to surface to the caller.
func Public(err error) bool {
	k := KindOf(err)
	return k != "" && k != KindInternal
}
