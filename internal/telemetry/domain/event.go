package domain

import "time"

// Auth event types published to the event stream.
const (
	EventLoginSuccess      = "login_success"
	EventLoginFailure      = "login_failure"
	EventLogout            = "logout"
	EventLogoutAll         = "logout_all"
	EventSessionTerminated = "session_terminated"
	EventVersionRejected   = "version_rejected"
)

// AuthEvent is one authentication lifecycle event as streamed to Kafka and OTel logs.
type AuthEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	UserID     string         `json:"user_id,omitempty"`
	Username   string         `json:"username,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	AuthMethod string         `json:"auth_method,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
