package grpcserver

import (
	"context"

	"github.com/and161185/certvault/internal/policy"
)

type ctxKey string

const callerKey ctxKey = "cv.caller"

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, c policy.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromCtx fetches the caller from context. Missing means anonymous.
func CallerFromCtx(ctx context.Context) policy.Caller {
	c, _ := ctx.Value(callerKey).(policy.Caller)
	return c
}
