package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/certvault/internal/crypto"
	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/ledger"
	"github.com/and161185/certvault/internal/limiter"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/repository"
)

/************ principals ************/

type fakePrincipals struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Principal

	getErr error
}

var _ repository.PrincipalRepository = (*fakePrincipals)(nil)

func newFakePrincipals() *fakePrincipals {
	return &fakePrincipals{byID: map[uuid.UUID]*model.Principal{}}
}

func (f *fakePrincipals) add(email string, role model.Role, active bool) model.Principal {
	p := model.Principal{
		ID:         uuid.Must(uuid.NewV4()),
		Email:      email,
		SecretHash: "h:secret1",
		Name:       email,
		Role:       role,
		Active:     active,
	}
	f.mu.Lock()
	f.byID[p.ID] = &p
	f.mu.Unlock()
	return p
}

func (f *fakePrincipals) Create(_ context.Context, p *model.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if strings.EqualFold(x.Email, p.Email) {
			return errs.ErrConflict
		}
	}
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakePrincipals) GetByID(_ context.Context, id uuid.UUID) (*model.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePrincipals) GetByEmail(_ context.Context, email string) (*model.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.byID {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakePrincipals) ListByRole(_ context.Context, role model.Role) ([]model.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Principal
	for _, p := range f.byID {
		if p.Role == role && p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePrincipals) mutate(id uuid.UUID, fn func(p *model.Principal) error) (*model.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (f *fakePrincipals) Update(_ context.Context, id uuid.UUID, upd model.PrincipalUpdate) (*model.Principal, error) {
	if upd.Email != nil {
		for _, p := range f.byID {
			if p.ID != id && strings.EqualFold(p.Email, *upd.Email) {
				return nil, errs.ErrConflict
			}
		}
	}
	return f.mutate(id, func(p *model.Principal) error {
		if upd.Email != nil {
			p.Email = *upd.Email
		}
		if upd.Name != nil {
			p.Name = *upd.Name
		}
		return nil
	})
}

func (f *fakePrincipals) SetActive(_ context.Context, id uuid.UUID, active bool) (*model.Principal, error) {
	return f.mutate(id, func(p *model.Principal) error { p.Active = active; return nil })
}

func (f *fakePrincipals) SetRole(_ context.Context, id uuid.UUID, role model.Role) (*model.Principal, error) {
	return f.mutate(id, func(p *model.Principal) error { p.Role = role; return nil })
}

/************ certificates ************/

type fakeCerts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Certificate
	seq  time.Time

	creates int
	// hideHash makes GetByHash miss, simulating a racing insert.
	hideHash bool
}

var _ repository.CertificateRepository = (*fakeCerts)(nil)

func newFakeCerts() *fakeCerts {
	return &fakeCerts{byID: map[uuid.UUID]*model.Certificate{}, seq: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeCerts) Create(_ context.Context, c *model.Certificate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.Hash == c.Hash || x.ReferenceID == c.ReferenceID {
			return errs.ErrConflict
		}
	}
	f.seq = f.seq.Add(time.Second)
	c.CreatedAt, c.UpdatedAt = f.seq, f.seq
	cp := *c
	f.byID[c.ID] = &cp
	f.creates++
	return nil
}

func (f *fakeCerts) find(match func(*model.Certificate) bool) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if match(c) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeCerts) GetByID(_ context.Context, id uuid.UUID) (*model.Certificate, error) {
	return f.find(func(c *model.Certificate) bool { return c.ID == id })
}

func (f *fakeCerts) GetByHash(_ context.Context, hash string) (*model.Certificate, error) {
	if f.hideHash {
		return nil, errs.ErrNotFound
	}
	return f.find(func(c *model.Certificate) bool { return c.Hash == hash })
}

func (f *fakeCerts) GetByIdentifier(_ context.Context, id string) (*model.Certificate, error) {
	return f.find(func(c *model.Certificate) bool { return c.Hash == id || c.ReferenceID == id })
}

func (f *fakeCerts) list(match func(*model.Certificate) bool) []model.Certificate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Certificate
	for _, c := range f.byID {
		if match(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeCerts) ListByRecipient(_ context.Context, email string) ([]model.Certificate, error) {
	return f.list(func(c *model.Certificate) bool { return c.RecipientEmail == email }), nil
}

func (f *fakeCerts) ListByIssuer(_ context.Context, issuerID uuid.UUID) ([]model.Certificate, error) {
	return f.list(func(c *model.Certificate) bool { return c.IssuerID == issuerID }), nil
}

func (f *fakeCerts) Revoke(_ context.Context, id uuid.UUID) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c.Valid = false
	cp := *c
	return &cp, nil
}

/************ ledger ************/

type fakeLedger struct {
	mu sync.Mutex

	recordErr     error
	confirmOK     bool
	confirmErr    error
	invalidateErr error

	records, invalidations int
}

var _ ledger.Ledger = (*fakeLedger)(nil)

func (l *fakeLedger) Record(_ context.Context, _ string, payload []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records++
	if l.recordErr != nil {
		return "", l.recordErr
	}
	return ledger.ReferenceFor(payload)
}

func (l *fakeLedger) Confirm(context.Context, string) (bool, error) {
	return l.confirmOK, l.confirmErr
}

func (l *fakeLedger) Invalidate(context.Context, string) (bool, error) {
	l.invalidations++
	return l.invalidateErr == nil, l.invalidateErr
}

/************ limiter ************/

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

/************ hasher ************/

// plainHasher keeps tests fast; the real Argon2id is covered in package crypto.
type plainHasher struct{}

var _ crypto.SecretHasher = plainHasher{}

func (plainHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}
	return "h:" + secret, nil
}

func (plainHasher) Compare(secret, digest string) bool { return digest == "h:"+secret }

// countingHasher records the digests Compare is called with.
type countingHasher struct {
	plainHasher
	mu       sync.Mutex
	compared []string
}

func (h *countingHasher) Compare(secret, digest string) bool {
	h.mu.Lock()
	h.compared = append(h.compared, digest)
	h.mu.Unlock()
	return h.plainHasher.Compare(secret, digest)
}
