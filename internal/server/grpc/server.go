// Package grpcserver exposes the CertVault gRPC API handlers.
package grpcserver

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/and161185/certvault/api/certvault/v1"
	"github.com/and161185/certvault/internal/convert"
	"github.com/and161185/certvault/internal/errs"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/policy"
	"github.com/and161185/certvault/internal/service"
)

// Certificates is the caller-aware certificate API.
type Certificates interface {
	Issue(ctx context.Context, caller policy.Caller, req model.IssueRequest) (model.CertificateView, error)
	Verify(ctx context.Context, caller policy.Caller, identifier string) (model.VerificationView, error)
	Get(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.CertificateView, error)
	ListByRecipient(ctx context.Context, caller policy.Caller, email string) ([]model.CertificateView, error)
	ListByIssuer(ctx context.Context, caller policy.Caller, issuerID uuid.UUID) ([]model.CertificateView, error)
	Revoke(ctx context.Context, caller policy.Caller, id uuid.UUID) (model.CertificateView, error)
}

var _ Certificates = (*service.CertificateAccess)(nil)

// Server wires services into gRPC handlers.
type Server struct {
	pb.UnimplementedCertVaultServer
	auth       service.AuthService
	principals service.PrincipalService
	certs      Certificates
	log        *zap.Logger
}

var _ pb.CertVaultServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, principals service.PrincipalService, certs Certificates, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, principals: principals, certs: certs, log: log}
}

// fail converts err to a status and logs causes the caller will not see.
func (s *Server) fail(ctx context.Context, err error) error {
	if errs.KindOf(err) == errs.KindInternal && ctx.Err() == nil {
		s.log.Error("request failed", zap.Error(err))
	}
	return toStatus(err)
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := convert.Struct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// --- Auth ---

// Register creates an account with a non-admin role and returns a session.
func (s *Server) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := convert.Args(in)
	var req service.RegisterRequest
	var err error
	if req.Email, err = f.String("email"); err != nil {
		return nil, s.fail(ctx, err)
	}
	if req.Secret, err = f.String("secret"); err != nil {
		return nil, s.fail(ctx, err)
	}
	if req.Name, err = f.String("name"); err != nil {
		return nil, s.fail(ctx, err)
	}
	if req.Role, err = convert.ToRole(f); err != nil {
		return nil, s.fail(ctx, err)
	}
	p, tok, err := s.auth.Register(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromSession(p, tok))
}

// Login authenticates with email and secret.
func (s *Server) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := convert.Args(in)
	email, err := f.String("email")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	secret, err := f.String("secret")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	tok, p, err := s.auth.Login(ctx, email, secret, remoteIP(ctx))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromSession(p, tok))
}

// Profile returns the caller's own account.
func (s *Server) Profile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.principals.Profile(ctx, CallerFromCtx(ctx))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipal(p))
}

// --- Principals ---

// CreatePrincipal creates an account with any role.
func (s *Server) CreatePrincipal(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := convert.Args(in)
	var req service.NewPrincipal
	var err error
	if req.Email, err = f.String("email"); err != nil {
		return nil, s.fail(ctx, err)
	}
	if req.Secret, err = f.String("secret"); err != nil {
		return nil, s.fail(ctx, err)
	}
	if req.Name, err = f.String("name"); err != nil {
		return nil, s.fail(ctx, err)
	}
	if req.Role, err = convert.ToRole(f); err != nil {
		return nil, s.fail(ctx, err)
	}
	p, err := s.principals.Create(ctx, CallerFromCtx(ctx), req)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipal(p))
}

// GetPrincipal loads an account by id.
func (s *Server) GetPrincipal(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.Args(in).UUID("id")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	p, err := s.principals.Get(ctx, CallerFromCtx(ctx), id)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipal(p))
}

// ListPrincipalsByRole lists active accounts of a role.
func (s *Server) ListPrincipalsByRole(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	role, err := convert.ToRole(convert.Args(in))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	ps, err := s.principals.ListByRole(ctx, CallerFromCtx(ctx), role)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipals(ps))
}

// UpdatePrincipal changes email and/or name.
func (s *Server) UpdatePrincipal(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := convert.Args(in)
	id, err := f.UUID("id")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	upd, err := convert.ToPrincipalUpdate(f)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	p, err := s.principals.Update(ctx, CallerFromCtx(ctx), id, upd)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipal(p))
}

// DeactivatePrincipal soft-disables an account.
func (s *Server) DeactivatePrincipal(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.Args(in).UUID("id")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	p, err := s.principals.Deactivate(ctx, CallerFromCtx(ctx), id)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipal(p))
}

// SetPrincipalStatus activates or deactivates an account.
func (s *Server) SetPrincipalStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := convert.Args(in)
	id, err := f.UUID("id")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	if !f.Has("active") {
		return nil, s.fail(ctx, fmt.Errorf("active is required: %w", errs.ErrValidation))
	}
	active, err := f.Bool("active")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	p, err := s.principals.SetStatus(ctx, CallerFromCtx(ctx), id, active)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipal(p))
}

// ChangePrincipalRole assigns a new role.
func (s *Server) ChangePrincipalRole(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := convert.Args(in)
	id, err := f.UUID("id")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	role, err := convert.ToRole(f)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	p, err := s.principals.ChangeRole(ctx, CallerFromCtx(ctx), id, role)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromPrincipal(p))
}

// --- Certificates ---

// IssueCertificate issues a certificate owned by the caller.
func (s *Server) IssueCertificate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := convert.ToIssueRequest(in)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	v, err := s.certs.Issue(ctx, CallerFromCtx(ctx), req)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromCertificateView(v))
}

// VerifyCertificate checks a certificate by hash or ledger reference. Open to anonymous callers.
func (s *Server) VerifyCertificate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	identifier, err := convert.Args(in).String("identifier")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	v, err := s.certs.Verify(ctx, CallerFromCtx(ctx), identifier)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromVerification(v))
}

// GetCertificate returns one certificate by id.
func (s *Server) GetCertificate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.Args(in).UUID("id")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	v, err := s.certs.Get(ctx, CallerFromCtx(ctx), id)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromCertificateView(v))
}

// ListCertificatesByRecipient lists certificates of a recipient email.
func (s *Server) ListCertificatesByRecipient(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	email, err := convert.Args(in).String("email")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	vs, err := s.certs.ListByRecipient(ctx, CallerFromCtx(ctx), email)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromCertificateViews(vs))
}

// ListCertificatesByIssuer lists certificates issued by a principal.
func (s *Server) ListCertificatesByIssuer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	issuerID, err := convert.Args(in).UUID("issuerId")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	vs, err := s.certs.ListByIssuer(ctx, CallerFromCtx(ctx), issuerID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromCertificateViews(vs))
}

// RevokeCertificate invalidates a certificate.
func (s *Server) RevokeCertificate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.Args(in).UUID("id")
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	v, err := s.certs.Revoke(ctx, CallerFromCtx(ctx), id)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return reply(convert.FromCertificateView(v))
}
