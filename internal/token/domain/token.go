package domain

import "time"

// Token types. Only access tokens are issued; refresh rows remain from older clients until reaped.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// AuthToken is the stored record of an issued bearer token. The raw token is never persisted, only its hash.
type AuthToken struct {
	ID         string
	UserID     string
	SessionID  string
	TokenHash  string
	TokenType  string
	DeviceInfo map[string]any // snapshot at issuance, stored as jsonb
	ExpiresAt  time.Time
	IsRevoked  bool
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

// Live reports whether the token is unrevoked and unexpired at now.
func (t *AuthToken) Live(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}
