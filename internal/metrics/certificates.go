package metrics

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/policy"
	"github.com/and161185/certvault/internal/service"
)

var _ service.CertificateService = (*certificatesMiddleware)(nil)

type certificatesMiddleware struct {
	m   *Metrics
	svc service.CertificateService
}

// NewCertificateService instruments svc by tracking call count, error kind and latency.
func NewCertificateService(svc service.CertificateService, m *Metrics) service.CertificateService {
	return &certificatesMiddleware{m: m, svc: svc}
}

func (cm *certificatesMiddleware) observe(method string, begin time.Time, err error) {
	kind := "none"
	if err != nil {
		kind = string(errs.KindOf(err))
	}
	cm.m.calls.WithLabelValues(method, kind).Inc()
	cm.m.callLatency.WithLabelValues(method).Observe(time.Since(begin).Seconds())
}

func (cm *certificatesMiddleware) Issue(ctx context.Context, req model.IssueRequest, issuerID uuid.UUID) (c *model.Certificate, err error) {
	defer func(begin time.Time) { cm.observe("issue", begin, err) }(time.Now())
	return cm.svc.Issue(ctx, req, issuerID)
}

func (cm *certificatesMiddleware) Verify(ctx context.Context, identifier string) (v model.Verification, err error) {
	defer func(begin time.Time) {
		cm.observe("verify", begin, err)
		if err == nil {
			cm.m.verifications.WithLabelValues(string(v.Reason)).Inc()
		}
	}(time.Now())
	return cm.svc.Verify(ctx, identifier)
}

func (cm *certificatesMiddleware) Revoke(ctx context.Context, certID uuid.UUID, caller policy.Caller) (c *model.Certificate, err error) {
	defer func(begin time.Time) { cm.observe("revoke", begin, err) }(time.Now())
	return cm.svc.Revoke(ctx, certID, caller)
}

func (cm *certificatesMiddleware) Get(ctx context.Context, id uuid.UUID) (c *model.Certificate, err error) {
	defer func(begin time.Time) { cm.observe("get", begin, err) }(time.Now())
	return cm.svc.Get(ctx, id)
}

func (cm *certificatesMiddleware) ListByRecipient(ctx context.Context, email string) (cs []model.Certificate, err error) {
	defer func(begin time.Time) { cm.observe("list_by_recipient", begin, err) }(time.Now())
	return cm.svc.ListByRecipient(ctx, email)
}

func (cm *certificatesMiddleware) ListByIssuer(ctx context.Context, issuerID uuid.UUID) (cs []model.Certificate, err error) {
	defer func(begin time.Time) { cm.observe("list_by_issuer", begin, err) }(time.Now())
	return cm.svc.ListByIssuer(ctx, issuerID)
}
