package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/and161185/certvault/api/certvault/v1"
	"github.com/and161185/certvault/internal/errs"
)

var kindCodes = map[errs.Kind]codes.Code{
	errs.KindValidation:   codes.InvalidArgument,
	errs.KindConflict:     codes.AlreadyExists,
	errs.KindNotFound:     codes.NotFound,
	errs.KindForbidden:    codes.PermissionDenied,
	errs.KindUnauthorized: codes.Unauthenticated,
	errs.KindIntegration:  codes.Unavailable,
	errs.KindRateLimited:  codes.ResourceExhausted,
	errs.KindInternal:     codes.Internal,
}

// toStatus maps a domain error to a gRPC status carrying an ErrorInfo with
// the error kind. Internal causes are not exposed.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	kind := errs.KindOf(err)
	msg := "internal error"
	if errs.Public(err) {
		msg = err.Error()
	}
	st := status.New(kindCodes[kind], msg)
	if d, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: string(kind), Domain: pb.ErrorDomain}); derr == nil {
		st = d
	}
	return st.Err()
}
