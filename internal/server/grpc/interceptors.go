package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	pb "github.com/and161185/certvault/api/certvault/v1"
	"github.com/and161185/certvault/internal/model"
	"github.com/and161185/certvault/internal/policy"
)

// Authenticator resolves a bearer token to current claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Claims, error)
}

// publicMethods never look at credentials.
var publicMethods = map[string]bool{
	pb.FullMethod(pb.MethodRegister): true,
	pb.FullMethod(pb.MethodLogin):    true,
}

// AuthUnary resolves the bearer token into a policy.Caller stored in the
// context. Requests without a token proceed as anonymous; a token that
// fails verification is rejected. Methods of other services pass through.
func AuthUnary(auth Authenticator) grpc.UnaryServerInterceptor {
	prefix := "/" + pb.ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) || publicMethods[info.FullMethod] {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return next(WithCaller(ctx, policy.Caller{}), req)
		}
		claims, err := auth.Authenticate(ctx, tok)
		if err != nil {
			return nil, toStatus(err)
		}
		return next(WithCaller(ctx, policy.FromClaims(claims)), req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

func remoteIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// LoggingUnary returns a unary server interceptor for structured logging.
// Server side failures are logged at error level.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		lvl := zapcore.InfoLevel
		switch code {
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
			lvl = zapcore.ErrorLevel
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remoteIP(ctx)),
		}
		if reason := pb.ErrorReason(err); reason != "" {
			fields = append(fields, zap.String("reason", reason))
		}
		// metadata only, never payloads
		log.Log(lvl, "grpc", fields...)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}
