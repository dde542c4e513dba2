package types

import (
	"context"
	"errors"
)

// Context Keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	clientIPKey  contextKey = "client_ip"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP stores the resolved client address in the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP retrieves the client address from the context.
// Returns the address and true if present, or empty string and false if not set.
func GetClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey).(string)
	return ip, ok && ip != ""
}

// ContextError converts a context cancellation or deadline into an AppError.
// Returns nil when err is not a context error.
func ContextError(err error) *AppError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewAppError(ErrCodeUnavailableTimeout, "request exceeded its time budget", err)
	case errors.Is(err, context.Canceled):
		return NewAppError(ErrCodeUnavailableCancelled, "request was cancelled", err)
	default:
		return nil
	}
}
