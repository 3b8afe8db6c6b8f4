// Package ledger defines the integration seam to an external notarization
// ledger and provides a stub backend that always succeeds.
package ledger

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"go.uber.org/zap"
)

// Ledger records, confirms and invalidates certificate anchors.
//
// Implementations must be idempotent on retry: recording the same payload
// twice yields the same reference id.
type Ledger interface {
	// Record anchors payload for the certificate with the given content hash
	// and returns the external reference id.
	Record(ctx context.Context, hash string, payload []byte) (referenceID string, err error)
	// Confirm reports whether referenceID is still anchored.
	Confirm(ctx context.Context, referenceID string) (bool, error)
	// Invalidate marks referenceID as revoked on the ledger.
	Invalidate(ctx context.Context, referenceID string) (bool, error)
}

// Stub is a ledger stand-in. Reference ids are CIDv1 (raw, sha2-256) of the
// payload, so they are content addressed and stable across retries.
type Stub struct {
	log *zap.Logger
}

var _ Ledger = (*Stub)(nil)

// NewStub constructs a Stub. A nil logger disables logging.
func NewStub(log *zap.Logger) *Stub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stub{log: log}
}

// Record implements Ledger.
func (s *Stub) Record(ctx context.Context, hash string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := ReferenceFor(payload)
	if err != nil {
		return "", err
	}
	s.log.Debug("ledger record", zap.String("hash", hash), zap.String("reference_id", ref))
	return ref, nil
}

// Confirm implements Ledger. Any well-formed reference is confirmed.
func (s *Stub) Confirm(ctx context.Context, referenceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, err := cid.Decode(referenceID)
	if err != nil || !id.Defined() {
		return false, nil
	}
	s.log.Debug("ledger confirm", zap.String("reference_id", referenceID))
	return true, nil
}

// Invalidate implements Ledger.
func (s *Stub) Invalidate(ctx context.Context, referenceID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.log.Debug("ledger invalidate", zap.String("reference_id", referenceID))
	return true, nil
}

// ReferenceFor returns the CIDv1 (raw + sha2-256) string for payload.
func ReferenceFor(payload []byte) (string, error) {
	sum, err := multihash.Sum(payload, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("ledger reference: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}
