package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{fmt.Errorf("issue: %w", ErrValidation), KindValidation},
		{fmt.Errorf("create: %w", ErrConflict), KindConflict},
		{ErrNotFound, KindNotFound},
		{fmt.Errorf("revoke: %w", ErrForbidden), KindForbidden},
		{ErrUnauthorized, KindUnauthorized},
		{fmt.Errorf("ledger: %w", ErrIntegration), KindIntegration},
		{ErrRateLimited, KindRateLimited},
		{errors.New("db down"), KindInternal},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Fatalf("KindOf(%v)=%q, want %q", c.err, got, c.want)
		}
	}
}

func TestPublic(t *testing.T) {
	t.Parallel()

	if Public(nil) {
		t.Fatalf("nil must not be public")
	}
	if Public(errors.New("pq: connection refused")) {
		t.Fatalf("internal errors must not be public")
	}
	if !Public(fmt.Errorf("x: %w", ErrConflict)) {
		t.Fatalf("conflict must be public")
	}
}
