// Package rbac holds the role checks for privileged auth endpoints.
package rbac

import (
	"context"
	"errors"

	"helpdesk-auth/backend/internal/server/middleware"
	tokensvc "helpdesk-auth/backend/internal/token/service"
)

var (
	// ErrUnauthenticated means no validated token is attached to the request context.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNotSuperAdmin means the caller is authenticated but lacks the super-admin flag.
	ErrNotSuperAdmin = errors.New("super admin privileges required")
)

// RequireSuperAdmin ensures the caller passed RequireBearer and is an active super admin.
// The user flags come from the token validation, which reads the user row on every request.
func RequireSuperAdmin(ctx context.Context) (*tokensvc.Validation, error) {
	v, ok := middleware.ValidationFrom(ctx)
	if !ok || v == nil || !v.Valid || v.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if v.User == nil || !v.User.IsActive || !v.User.IsSuperAdmin {
		return nil, ErrNotSuperAdmin
	}
	return v, nil
}
