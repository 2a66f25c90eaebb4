// Package models contains domain types for dataguard.
package models

import (
	"context"

	"github.com/google/uuid"
)

// CallerInfo carries the ambient identity of the request that triggered a
// data-layer call. All fields are optional: system-initiated calls have no
// user, no client address and no user agent.
type CallerInfo struct {
	UserID    *uuid.UUID
	IPAddress *string
	UserAgent *string
}

// callerKey is the context key for storing caller information.
type callerKey struct{}

// WithCaller returns a new context with caller identity attached. The hosting
// framework (HTTP middleware, message consumer, etc.) is expected to set this
// before data-layer calls are made.
func WithCaller(ctx context.Context, c CallerInfo) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// GetCaller retrieves caller identity from the context.
// Returns the caller info and true if present, otherwise a zero value and false.
func GetCaller(ctx context.Context) (CallerInfo, bool) {
	c, ok := ctx.Value(callerKey{}).(CallerInfo)
	return c, ok
}
