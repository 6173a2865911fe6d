package domain

import "time"

// Variant distinguishes desktop-client sessions from browser sessions.
type Variant string

const (
	VariantDesktop Variant = "desktop"
	VariantWeb     Variant = "web"
)

// AuthMethod records which login entry point created the session.
type AuthMethod string

const (
	AuthPasswordless AuthMethod = "passwordless"
	AuthSSO          AuthMethod = "sso"
	AuthAD           AuthMethod = "ad"
	AuthAdmin        AuthMethod = "admin"
)

// DefaultDesktopAppVersion is stored when a desktop client does not report its version.
const DefaultDesktopAppVersion = "1.0.0"

// Session type ids exposed to clients listing their sessions.
const (
	SessionTypeWeb     = 1
	SessionTypeDesktop = 2
)

// Session is one authenticated client connection context. Terminated sessions are kept for audit.
type Session struct {
	ID                string
	UserID            string
	Variant           Variant
	IPAddress         string
	AuthMethod        AuthMethod
	DeviceFingerprint string
	AuthenticatedAt   *time.Time
	LastAuthRefresh   *time.Time
	IsActive          bool
	LastHeartbeat     *time.Time
	// Desktop only.
	AppVersion   string
	ComputerName string
	OSInfo       string
	// Web only.
	Browser   string
	UserAgent string

	TerminatedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsDesktop reports whether s is a desktop session.
func (s *Session) IsDesktop() bool { return s.Variant == VariantDesktop }

// LastActivity is the most recent of the heartbeat, authentication and creation times.
func (s *Session) LastActivity() time.Time {
	t := s.CreatedAt
	for _, c := range []*time.Time{s.AuthenticatedAt, s.LastHeartbeat} {
		if c != nil && c.After(t) {
			t = *c
		}
	}
	return t
}

// SessionInfo is the client-facing summary of an active session.
type SessionInfo struct {
	ID              string     `json:"id"`
	SessionTypeID   int        `json:"session_type_id"`
	Variant         Variant    `json:"variant"`
	IPAddress       string     `json:"ip_address"`
	AuthMethod      AuthMethod `json:"auth_method"`
	AppVersion      string     `json:"app_version,omitempty"`
	ComputerName    string     `json:"computer_name,omitempty"`
	OSInfo          string     `json:"os_info,omitempty"`
	Browser         string     `json:"browser,omitempty"`
	AuthenticatedAt *time.Time `json:"authenticated_at"`
	LastHeartbeat   *time.Time `json:"last_heartbeat"`
	CreatedAt       time.Time  `json:"created_at"`
	IsCurrent       bool       `json:"is_current"`
}

// Info converts s to its client-facing summary.
func (s *Session) Info() SessionInfo {
	typeID := SessionTypeWeb
	if s.IsDesktop() {
		typeID = SessionTypeDesktop
	}
	return SessionInfo{
		ID:              s.ID,
		SessionTypeID:   typeID,
		Variant:         s.Variant,
		IPAddress:       s.IPAddress,
		AuthMethod:      s.AuthMethod,
		AppVersion:      s.AppVersion,
		ComputerName:    s.ComputerName,
		OSInfo:          s.OSInfo,
		Browser:         s.Browser,
		AuthenticatedAt: s.AuthenticatedAt,
		LastHeartbeat:   s.LastHeartbeat,
		CreatedAt:       s.CreatedAt,
	}
}
