package repository

import (
	"context"
	"time"

	"helpdesk-auth/backend/internal/token/domain"
)

// Repository defines persistence for issued tokens.
type Repository interface {
	// ReplaceForSession revokes every unrevoked token of t.SessionID and inserts t, in one transaction.
	ReplaceForSession(ctx context.Context, t *domain.AuthToken) error
	// GetByHash returns nil, nil when no row matches.
	GetByHash(ctx context.Context, tokenHash string) (*domain.AuthToken, error)
	RevokeBySession(ctx context.Context, sessionID string, at time.Time) (int64, error)
	RevokeByUser(ctx context.Context, userID string, at time.Time) (int64, error)
	// Count returns the number of rows of tokenType ("" for all types).
	Count(ctx context.Context, tokenType string) (int64, error)
	// PurgeExpired deletes rows of tokenType whose expires_at is before cutoff.
	PurgeExpired(ctx context.Context, tokenType string, cutoff time.Time) (int64, error)
	// PurgeRevoked deletes rows of tokenType whose revoked_at is before cutoff.
	PurgeRevoked(ctx context.Context, tokenType string, cutoff time.Time) (int64, error)
}
