// Package limiter throttles failed logins per (email, client address).
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login may be attempted and, if not, for how long it stays blocked.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets the failure counter.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP hashes the host part of addr so raw client addresses are never stored.
func HashIP(addr string) []byte {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(host))
	return sum[:]
}
