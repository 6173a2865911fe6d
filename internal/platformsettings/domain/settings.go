package domain

import "time"

// Keys of the runtime-tunable settings stored in platform_settings.
const (
	KeyVersionEnforceEnabled         = "version_policy.enforce_enabled"
	KeyVersionRejectOutdatedEnforced = "version_policy.reject_outdated_enforced"
	KeyVersionRejectUnknown          = "version_policy.reject_unknown"
)

// Setting is one platform_settings row. Value holds the raw value_json text.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
