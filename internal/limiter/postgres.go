package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps failure counters in the login_attempts table.
// A counter older than window restarts at one; maxFails failures inside the
// window block the pair for blockFor.
type PG struct {
	db       Querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(db Querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{db: db, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// Allow implements Limiter.
func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE email = $1 AND ip_hash = $2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, email, ipHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if wait := blockedUntil.Sub(l.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	const q = `
INSERT INTO login_attempts (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', now())
ON CONFLICT (email, ip_hash)
DO UPDATE SET fail_count = 0, blocked_until = 'epoch', updated_at = now()`
	_, err := l.db.Exec(ctx, q, email, ipHash)
	return err
}

// Failure implements Limiter.
func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', now())
ON CONFLICT (email, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN EXCLUDED.updated_at - login_attempts.updated_at > $3::interval
                    THEN 1 ELSE login_attempts.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, email, ipHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}

	const upd = `UPDATE login_attempts SET blocked_until = $3 WHERE email = $1 AND ip_hash = $2`
	if _, err := l.db.Exec(ctx, upd, email, ipHash, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
