package repository

import (
	"context"

	"helpdesk-auth/backend/internal/clientversion/domain"
)

// Repository defines persistence for the client version registry.
type Repository interface {
	// ListActive returns the active versions of platform, newest first.
	ListActive(ctx context.Context, platform string) ([]domain.ClientVersion, error)
	// List returns every version of platform, newest first.
	List(ctx context.Context, platform string) ([]domain.ClientVersion, error)
	// Upsert inserts or updates v by (platform, version_string). When v.IsLatest is set the previous
	// latest of the platform is cleared in the same transaction.
	Upsert(ctx context.Context, v *domain.ClientVersion) error
}
