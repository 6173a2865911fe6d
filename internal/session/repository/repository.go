package repository

import (
	"context"
	"time"

	"helpdesk-auth/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Termination also revokes the session's tokens
// in the same transaction so a terminated session never holds a live token.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// GetByID returns nil, nil when no row matches.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Stamp(ctx context.Context, id, fingerprint string, at time.Time) error
	// Terminate deactivates the session and revokes its tokens. Terminating an inactive session is a no-op.
	Terminate(ctx context.Context, id string, at time.Time) error
	// TerminateAllForUser deactivates every active session of the user and revokes all the user's tokens.
	// Returns the number of sessions that were active.
	TerminateAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// Heartbeat touches an active session. Returns false when the session is missing or inactive.
	Heartbeat(ctx context.Context, id, ipAddress string, at time.Time) (bool, error)
	// ListStaleDesktop returns active desktop sessions with no activity since before.
	ListStaleDesktop(ctx context.Context, before time.Time) ([]*domain.Session, error)
	// PurgeTerminated hard-deletes inactive sessions terminated before cutoff.
	PurgeTerminated(ctx context.Context, cutoff time.Time) (int64, error)
}
