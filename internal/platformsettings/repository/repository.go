package repository

import (
	"context"

	"helpdesk-auth/backend/internal/platformsettings/domain"
	"helpdesk-auth/backend/internal/versionpolicy"
)

// Repository defines access to runtime platform settings.
type Repository interface {
	// Get returns the setting for key, or nil, nil when unset.
	Get(ctx context.Context, key string) (*domain.Setting, error)
	// Set creates or replaces the value of key.
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]domain.Setting, error)
	// VersionPolicySettings returns the enforcement switches, using defaults for missing or unparsable keys.
	VersionPolicySettings(ctx context.Context, defaults versionpolicy.PolicySettings) (versionpolicy.PolicySettings, error)
}
