// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "ctxutil.requestID"
	accountKey   contextKey = "ctxutil.account"
)

// WithRequestID adds a request ID to the context for tracing.
// Request ID is typically generated per gateway request or CLI invocation for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// EnsureRequestID returns ctx with a request ID, generating a new UUID if none is present.
func EnsureRequestID(ctx context.Context) context.Context {
	if id, ok := GetRequestID(ctx); ok && id != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok
}

// WithAccount adds the campus account name (SSO username) to the context.
// Never store passwords here: every context value may end up in logs.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// GetAccount retrieves the account name from the context.
// Returns the account if found, empty string otherwise.
func GetAccount(ctx context.Context) string {
	if v := ctx.Value(accountKey); v != nil {
		if account, ok := v.(string); ok && account != "" {
			return account
		}
	}
	return ""
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// Use for best-effort work that must outlive the request, such as a cache write
// after the caller already has its answer.
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if requestID, ok := GetRequestID(ctx); ok && requestID != "" {
		newCtx = WithRequestID(newCtx, requestID)
	}
	if account := GetAccount(ctx); account != "" {
		newCtx = WithAccount(newCtx, account)
	}

	return newCtx
}
