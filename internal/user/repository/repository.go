package repository

import (
	"context"
	"errors"
	"time"

	"helpdesk-auth/backend/internal/user/domain"
)

// ErrUsernameTaken is returned by Create when another row already holds the username (case-insensitively).
// It is derived from the database's unique_violation code, never from error text.
var ErrUsernameTaken = errors.New("username already exists")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByUsername matches case-insensitively. Returns nil, nil when no row matches.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Create inserts u. Returns ErrUsernameTaken on a username collision.
	Create(ctx context.Context, u *domain.User) error
	// UpdateProfile writes the mutable directory-sourced fields, is_domain and last_seen.
	UpdateProfile(ctx context.Context, u *domain.User) error
	// SetPassword sets the bcrypt hash used by local (admin) authentication.
	SetPassword(ctx context.Context, id, passwordHash string, at time.Time) error
	// SetFlags updates the account-state and role flags.
	SetFlags(ctx context.Context, id string, flags Flags) error
}

// Flags is the set of administratively controlled account flags.
type Flags struct {
	IsActive     bool
	IsBlocked    bool
	BlockMessage string
	IsTechnician bool
	IsSuperAdmin bool
}
