package domain

import "time"

// Audit actions recorded for the auth lifecycle.
const (
	ActionLoginSuccess      = "login_success"
	ActionLoginFailure      = "login_failure"
	ActionLogout            = "logout"
	ActionLogoutAll         = "logout_all"
	ActionSessionTerminated = "session_terminated"
	ActionVersionRejected   = "version_rejected"
)

// Audit resources.
const (
	ResourceAuth    = "auth"
	ResourceSession = "session"
)

// AuditLog represents an audit event. UserID is empty when the caller could not be identified.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  map[string]any
	CreatedAt time.Time
}
