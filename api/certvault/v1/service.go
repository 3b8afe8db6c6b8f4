// Package certvaultv1 holds the CertVault gRPC service description and client.
//
// Messages are google.protobuf.Struct so the package needs no generated code;
// certvault.proto documents the contract.
package certvaultv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "certvault.v1.CertVault"

// Method names.
const (
	MethodRegister                    = "Register"
	MethodLogin                       = "Login"
	MethodProfile                     = "Profile"
	MethodCreatePrincipal             = "CreatePrincipal"
	MethodGetPrincipal                = "GetPrincipal"
	MethodListPrincipalsByRole        = "ListPrincipalsByRole"
	MethodUpdatePrincipal             = "UpdatePrincipal"
	MethodDeactivatePrincipal         = "DeactivatePrincipal"
	MethodSetPrincipalStatus          = "SetPrincipalStatus"
	MethodChangePrincipalRole         = "ChangePrincipalRole"
	MethodIssueCertificate            = "IssueCertificate"
	MethodVerifyCertificate           = "VerifyCertificate"
	MethodGetCertificate              = "GetCertificate"
	MethodListCertificatesByRecipient = "ListCertificatesByRecipient"
	MethodListCertificatesByIssuer    = "ListCertificatesByIssuer"
	MethodRevokeCertificate           = "RevokeCertificate"
)

// FullMethod returns "/certvault.v1.CertVault/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// CertVaultServer is the server API for the CertVault service.
type CertVaultServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Profile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreatePrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPrincipalsByRole(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdatePrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeactivatePrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPrincipalStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePrincipalRole(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IssueCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCertificatesByRecipient(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCertificatesByIssuer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(CertVaultServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, h handlerFunc) grpc.MethodDesc {
	full := FullMethod(method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(srv.(CertVaultServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return h(srv.(CertVaultServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for the CertVault service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CertVaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRegister, CertVaultServer.Register),
		unary(MethodLogin, CertVaultServer.Login),
		unary(MethodProfile, CertVaultServer.Profile),
		unary(MethodCreatePrincipal, CertVaultServer.CreatePrincipal),
		unary(MethodGetPrincipal, CertVaultServer.GetPrincipal),
		unary(MethodListPrincipalsByRole, CertVaultServer.ListPrincipalsByRole),
		unary(MethodUpdatePrincipal, CertVaultServer.UpdatePrincipal),
		unary(MethodDeactivatePrincipal, CertVaultServer.DeactivatePrincipal),
		unary(MethodSetPrincipalStatus, CertVaultServer.SetPrincipalStatus),
		unary(MethodChangePrincipalRole, CertVaultServer.ChangePrincipalRole),
		unary(MethodIssueCertificate, CertVaultServer.IssueCertificate),
		unary(MethodVerifyCertificate, CertVaultServer.VerifyCertificate),
		unary(MethodGetCertificate, CertVaultServer.GetCertificate),
		unary(MethodListCertificatesByRecipient, CertVaultServer.ListCertificatesByRecipient),
		unary(MethodListCertificatesByIssuer, CertVaultServer.ListCertificatesByIssuer),
		unary(MethodRevokeCertificate, CertVaultServer.RevokeCertificate),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "certvault.proto",
}

// RegisterCertVaultServer registers srv on s.
func RegisterCertVaultServer(s grpc.ServiceRegistrar, srv CertVaultServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// UnimplementedCertVaultServer can be embedded for forward compatible implementations.
type UnimplementedCertVaultServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedCertVaultServer) Register(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodRegister)
}
func (UnimplementedCertVaultServer) Login(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodLogin)
}
func (UnimplementedCertVaultServer) Profile(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodProfile)
}
func (UnimplementedCertVaultServer) CreatePrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCreatePrincipal)
}
func (UnimplementedCertVaultServer) GetPrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetPrincipal)
}
func (UnimplementedCertVaultServer) ListPrincipalsByRole(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodListPrincipalsByRole)
}
func (UnimplementedCertVaultServer) UpdatePrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodUpdatePrincipal)
}
func (UnimplementedCertVaultServer) DeactivatePrincipal(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodDeactivatePrincipal)
}
func (UnimplementedCertVaultServer) SetPrincipalStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodSetPrincipalStatus)
}
func (UnimplementedCertVaultServer) ChangePrincipalRole(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodChangePrincipalRole)
}
func (UnimplementedCertVaultServer) IssueCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodIssueCertificate)
}
func (UnimplementedCertVaultServer) VerifyCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodVerifyCertificate)
}
func (UnimplementedCertVaultServer) GetCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetCertificate)
}
func (UnimplementedCertVaultServer) ListCertificatesByRecipient(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodListCertificatesByRecipient)
}
func (UnimplementedCertVaultServer) ListCertificatesByIssuer(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodListCertificatesByIssuer)
}
func (UnimplementedCertVaultServer) RevokeCertificate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodRevokeCertificate)
}
