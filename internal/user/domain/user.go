package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the local identity record. Users are never hard-deleted; is_active soft-deactivates them.
type User struct {
	ID                string
	Username          string
	Email             string
	FullName          string
	PhoneNumber       string
	Title             string
	Office            string
	DirectManagerName string
	ManagerID         *string // weak reference to another user; nil when unknown
	IsActive          bool
	IsBlocked         bool
	BlockMessage      string
	IsTechnician      bool
	IsSuperAdmin      bool
	IsDomain          bool   // sourced from the directory rather than created locally
	PasswordHash      string // set only for locally authenticated accounts
	LastSeen          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return errors.New("username is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	return nil
}

// NeedsDirectoryRefresh reports whether a domain user's local copy is older than threshold (or was never refreshed).
func (u *User) NeedsDirectoryRefresh(now time.Time, threshold time.Duration) bool {
	if !u.IsDomain {
		return false
	}
	return u.LastSeen == nil || now.Sub(*u.LastSeen) > threshold
}

// NormalizeUsername trims whitespace. Lookups compare case-insensitively, so case is preserved for display.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
