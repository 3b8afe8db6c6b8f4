package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/and161185/certvault/api/certvault/v1"
	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/policy"
	"github.com/and161185/certvault/internal/service"
)

var (
	adminID  = uuid.Must(uuid.FromString("00000000-0000-4000-8000-000000000001"))
	issuerID = uuid.Must(uuid.FromString("00000000-0000-4000-8000-000000000002"))
)

type fakeAuth struct {
	tokenAuth
	mu      sync.Mutex
	lastReg service.RegisterRequest
	lastIP  string
}

var _ service.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) Register(_ context.Context, req service.RegisterRequest) (model.Principal, model.Tokens, error) {
	f.mu.Lock()
	f.lastReg = req
	f.mu.Unlock()
	if req.Role == model.RoleAdmin {
		return model.Principal{}, model.Tokens{}, errs.ErrForbidden
	}
	p := model.Principal{ID: uuid.Must(uuid.NewV4()), Email: req.Email, Name: req.Name, Role: req.Role, Active: true}
	return p, model.Tokens{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAuth) Login(_ context.Context, email, secret, ip string) (model.Tokens, model.Principal, error) {
	f.mu.Lock()
	f.lastIP = ip
	f.mu.Unlock()
	if secret != "secret" {
		return model.Tokens{}, model.Principal{}, errs.ErrUnauthorized
	}
	return model.Tokens{AccessToken: "issuer"}, model.Principal{ID: issuerID, Email: email, Role: model.RoleIssuer}, nil
}

func (f *fakeAuth) BootstrapAdmin(context.Context, string, string, string) (bool, error) {
	return false, nil
}

type fakePrincipals struct {
	service.PrincipalService
	lastRole model.Role
}

func (f *fakePrincipals) Profile(_ context.Context, c policy.Caller) (model.Principal, error) {
	if c.Anonymous() {
		return model.Principal{}, errs.ErrUnauthorized
	}
	return model.Principal{ID: c.ID, Email: c.Email, Role: c.Role, Active: true}, nil
}

func (f *fakePrincipals) ListByRole(_ context.Context, c policy.Caller, role model.Role) ([]model.Principal, error) {
	if c.Role != model.RoleAdmin {
		return nil, errs.ErrForbidden
	}
	f.lastRole = role
	return []model.Principal{{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", Role: role}}, nil
}

func (f *fakePrincipals) SetStatus(_ context.Context, _ policy.Caller, id uuid.UUID, active bool) (model.Principal, error) {
	return model.Principal{ID: id, Active: active}, nil
}

type fakeCerts struct {
	mu        sync.Mutex
	callers   []policy.Caller
	lastIssue model.IssueRequest
	revokeErr error
}

var _ Certificates = (*fakeCerts)(nil)

func (f *fakeCerts) seen(c policy.Caller) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callers = append(f.callers, c)
}

func (f *fakeCerts) Issue(_ context.Context, c policy.Caller, req model.IssueRequest) (model.CertificateView, error) {
	f.seen(c)
	f.lastIssue = req
	cert := &model.Certificate{ID: uuid.Must(uuid.NewV4()), Recipient: req.Recipient, RecipientEmail: req.RecipientEmail,
		Course: req.Course, IssueDate: req.IssueDate, IssuerID: c.ID, Valid: true, Hash: "h", ReferenceID: "r"}
	return policy.Redact(policy.TierSelfScoped, cert), nil
}

func (f *fakeCerts) Verify(_ context.Context, c policy.Caller, identifier string) (model.VerificationView, error) {
	f.seen(c)
	if identifier == "" {
		return model.VerificationView{}, errs.ErrValidation
	}
	if identifier == "missing" {
		return model.VerificationView{Reason: model.ReasonNotFound, VerifiedAt: time.Now()}, nil
	}
	cert := &model.Certificate{Recipient: "Ana", Course: "Go", Valid: true, Hash: identifier}
	v, err := policy.View(policy.OpVerify, c, cert)
	if err != nil {
		return model.VerificationView{}, err
	}
	return model.VerificationView{Valid: true, Reason: model.ReasonValid, Certificate: &v, VerifiedAt: time.Now()}, nil
}

func (f *fakeCerts) Get(_ context.Context, c policy.Caller, _ uuid.UUID) (model.CertificateView, error) {
	f.seen(c)
	return model.CertificateView{}, errors.New("pg: relation does not exist")
}

func (f *fakeCerts) ListByRecipient(_ context.Context, c policy.Caller, _ string) ([]model.CertificateView, error) {
	f.seen(c)
	return []model.CertificateView{{Recipient: "Ana"}, {Recipient: "Ana"}}, nil
}

func (f *fakeCerts) ListByIssuer(_ context.Context, c policy.Caller, _ uuid.UUID) ([]model.CertificateView, error) {
	f.seen(c)
	return nil, nil
}

func (f *fakeCerts) Revoke(_ context.Context, c policy.Caller, _ uuid.UUID) (model.CertificateView, error) {
	f.seen(c)
	return model.CertificateView{}, f.revokeErr
}

const bufSize = 1 << 20

type fixture struct {
	client *pb.Client
	auth   *fakeAuth
	prin   *fakePrincipals
	certs  *fakeCerts
}

func startBufGRPC(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		auth: &fakeAuth{tokenAuth: tokenAuth{
			"admin":  {PrincipalID: adminID, Email: "root@x.com", Role: model.RoleAdmin},
			"issuer": {PrincipalID: issuerID, Email: "iss@x.com", Role: model.RoleIssuer},
		}},
		prin:  &fakePrincipals{},
		certs: &fakeCerts{},
	}
	log := zaptest.NewLogger(t)
	srv := New(fx.auth, fx.prin, fx.certs, log)

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log), AuthUnary(fx.auth)))
	pb.RegisterCertVaultServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	fx.client = pb.NewClient(cc)
	return fx
}

func as(token string) context.Context {
	if token == "" {
		return context.Background()
	}
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func (fx *fixture) call(t *testing.T, token, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(as(token), 5*time.Second)
	defer cancel()
	return fx.client.CallMap(ctx, method, in)
}

func wantCode(t *testing.T, err error, code codes.Code, reason string) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("want %v, got %v", code, err)
	}
	if got := pb.ErrorReason(err); got != reason {
		t.Fatalf("want reason %q, got %q", reason, got)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	fx := startBufGRPC(t)

	out, err := fx.call(t, "", pb.MethodRegister, map[string]any{
		"email": "ana@x.com", "secret": "secret", "name": "Ana", "role": "Issuer",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if fx.auth.lastReg.Role != model.RoleIssuer {
		t.Fatalf("role not parsed: %q", fx.auth.lastReg.Role)
	}
	m := out.AsMap()
	if m["accessToken"] != "tok" {
		t.Fatalf("missing token: %#v", m)
	}
	if p, _ := m["principal"].(map[string]any); p["email"] != "ana@x.com" {
		t.Fatalf("missing principal: %#v", m)
	}

	_, err = fx.call(t, "", pb.MethodRegister, map[string]any{"email": "a@x.com", "role": "admin"})
	wantCode(t, err, codes.PermissionDenied, "FORBIDDEN")

	_, err = fx.call(t, "", pb.MethodRegister, map[string]any{"email": "a@x.com", "role": "root"})
	wantCode(t, err, codes.InvalidArgument, "VALIDATION")

	// credentials are ignored on login, even stale ones
	if _, err := fx.call(t, "stale", pb.MethodLogin, map[string]any{"email": "iss@x.com", "secret": "secret"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if fx.auth.lastIP == "" {
		t.Fatalf("peer address not passed to Login")
	}
	_, err = fx.call(t, "", pb.MethodLogin, map[string]any{"email": "iss@x.com", "secret": "nope"})
	wantCode(t, err, codes.Unauthenticated, "UNAUTHORIZED")
}

func TestVerify_AnonymousGetsLimitedView(t *testing.T) {
	t.Parallel()
	fx := startBufGRPC(t)

	out, err := fx.call(t, "", pb.MethodVerifyCertificate, map[string]any{"identifier": "abc"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	m := out.AsMap()
	if m["valid"] != true || m["reason"] != "valid" || m["message"] != "Certificate is valid" {
		t.Fatalf("unexpected result: %#v", m)
	}
	cert, _ := m["certificate"].(map[string]any)
	if len(cert) != 4 || cert["hash"] != nil {
		t.Fatalf("anonymous must get the limited view: %#v", cert)
	}

	out, err = fx.call(t, "admin", pb.MethodVerifyCertificate, map[string]any{"identifier": "abc"})
	if err != nil {
		t.Fatalf("Verify as admin: %v", err)
	}
	if cert, _ := out.AsMap()["certificate"].(map[string]any); cert["hash"] != "abc" {
		t.Fatalf("admin must get the full view: %#v", cert)
	}

	out, err = fx.call(t, "", pb.MethodVerifyCertificate, map[string]any{"identifier": "missing"})
	if err != nil {
		t.Fatalf("Verify missing: %v", err)
	}
	if m := out.AsMap(); m["valid"] != false || m["reason"] != "not_found" {
		t.Fatalf("not found must be a result, not an error: %#v", m)
	}

	_, err = fx.call(t, "forged", pb.MethodVerifyCertificate, map[string]any{"identifier": "abc"})
	wantCode(t, err, codes.Unauthenticated, "UNAUTHORIZED")
}

func TestIssue_PassesCallerAndParsedRequest(t *testing.T) {
	t.Parallel()
	fx := startBufGRPC(t)

	out, err := fx.call(t, "issuer", pb.MethodIssueCertificate, map[string]any{
		"recipient": "Ana", "recipientEmail": "ana@x.com", "course": "Go", "grade": "A",
		"issueDate": "2024-01-01", "metadata": map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if fx.certs.callers[0].ID != issuerID || fx.certs.callers[0].Role != model.RoleIssuer {
		t.Fatalf("caller not propagated: %+v", fx.certs.callers[0])
	}
	if fx.certs.lastIssue.Metadata["k"] != "v" || fx.certs.lastIssue.IssueDate.Year() != 2024 {
		t.Fatalf("request not parsed: %+v", fx.certs.lastIssue)
	}
	if m := out.AsMap(); m["issuerId"] != issuerID.String() {
		t.Fatalf("unexpected issue result: %#v", m)
	}

	_, err = fx.call(t, "issuer", pb.MethodIssueCertificate, map[string]any{"issueDate": "someday"})
	wantCode(t, err, codes.InvalidArgument, "VALIDATION")
	if len(fx.certs.callers) != 1 {
		t.Fatalf("malformed request must not reach the service")
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	fx := startBufGRPC(t)

	fx.certs.revokeErr = errs.ErrForbidden
	_, err := fx.call(t, "issuer", pb.MethodRevokeCertificate, map[string]any{"id": uuid.Must(uuid.NewV4()).String()})
	wantCode(t, err, codes.PermissionDenied, "FORBIDDEN")

	_, err = fx.call(t, "issuer", pb.MethodRevokeCertificate, map[string]any{"id": "x"})
	wantCode(t, err, codes.InvalidArgument, "VALIDATION")

	_, err = fx.call(t, "admin", pb.MethodGetCertificate, map[string]any{"id": uuid.Must(uuid.NewV4()).String()})
	wantCode(t, err, codes.Internal, "INTERNAL")
	if st, _ := status.FromError(err); st.Message() != "internal error" {
		t.Fatalf("internal cause leaked: %q", st.Message())
	}
}

func TestPrincipals(t *testing.T) {
	t.Parallel()
	fx := startBufGRPC(t)

	out, err := fx.call(t, "admin", pb.MethodListPrincipalsByRole, map[string]any{"role": "verifier"})
	if err != nil {
		t.Fatalf("ListPrincipalsByRole: %v", err)
	}
	if fx.prin.lastRole != model.RoleVerifier {
		t.Fatalf("role = %q", fx.prin.lastRole)
	}
	if ps, _ := out.AsMap()["principals"].([]any); len(ps) != 1 {
		t.Fatalf("unexpected listing: %#v", out.AsMap())
	}

	_, err = fx.call(t, "issuer", pb.MethodListPrincipalsByRole, map[string]any{"role": "verifier"})
	wantCode(t, err, codes.PermissionDenied, "FORBIDDEN")

	out, err = fx.call(t, "issuer", pb.MethodProfile, nil)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if m := out.AsMap(); m["id"] != issuerID.String() || m["email"] != "iss@x.com" {
		t.Fatalf("unexpected profile: %#v", m)
	}
	_, err = fx.call(t, "", pb.MethodProfile, nil)
	wantCode(t, err, codes.Unauthenticated, "UNAUTHORIZED")

	_, err = fx.call(t, "admin", pb.MethodSetPrincipalStatus, map[string]any{"id": issuerID.String()})
	wantCode(t, err, codes.InvalidArgument, "VALIDATION")
	out, err = fx.call(t, "admin", pb.MethodSetPrincipalStatus, map[string]any{"id": issuerID.String(), "active": false})
	if err != nil || out.AsMap()["active"] != false {
		t.Fatalf("SetPrincipalStatus: %v %v", out, err)
	}
}

func TestUnimplemented(t *testing.T) {
	t.Parallel()

	var s pb.UnimplementedCertVaultServer
	_, err := s.Register(context.Background(), nil)
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("want Unimplemented, got %v", err)
	}
}
