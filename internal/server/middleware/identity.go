// Package middleware holds the HTTP middleware of the auth API: request ids and logging, Prometheus
// metrics, per-IP login rate limiting and bearer-token authentication.
package middleware

import (
	"context"

	tokensvc "helpdesk-auth/backend/internal/token/service"
)

type contextKey struct{ name string }

var (
	validationKey = contextKey{"validation"}
	requestIDKey  = contextKey{"request_id"}
)

// WithValidation returns a context carrying the validated caller.
func WithValidation(ctx context.Context, v *tokensvc.Validation) context.Context {
	return context.WithValue(ctx, validationKey, v)
}

// ValidationFrom returns the validated caller set by RequireBearer, or nil, false.
func ValidationFrom(ctx context.Context) (*tokensvc.Validation, bool) {
	v, ok := ctx.Value(validationKey).(*tokensvc.Validation)
	return v, ok && v != nil
}

// RequestIDFrom returns the request id set by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
