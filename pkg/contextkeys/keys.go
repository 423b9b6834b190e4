// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here. This
// prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logging middleware, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// ActorHandleKey contains the acting handle from the
	// X-Warden-Handle header
	// Set by: api request handlers
	// Used by: logging middleware
	// Type: string
	ActorHandleKey Key = "actor_handle"
)

// RequestID extracts the request ID from the context, or "" when
// unset.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// ActorHandle extracts the acting handle from the context, or "" when
// unset.
func ActorHandle(ctx context.Context) string {
	if handle, ok := ctx.Value(ActorHandleKey).(string); ok {
		return handle
	}
	return ""
}

// WithActorHandle returns a context carrying the acting handle.
func WithActorHandle(ctx context.Context, handle string) context.Context {
	return context.WithValue(ctx, ActorHandleKey, handle)
}
