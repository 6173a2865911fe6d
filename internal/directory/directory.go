// Package directory talks to the Active Directory domain: credential binds and user lookups.
package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"helpdesk-auth/backend/internal/autherr"
)

// DomainUser is the read-only directory view of a user.
type DomainUser struct {
	Username          string
	Email             string
	FullName          string
	PhoneNumber       string
	Title             string
	Office            string
	Department        string
	ManagerUsername   string
	DirectManagerName string
}

// Directory is the external identity source. GetUserByUsername returns nil, nil for an unknown user.
// Authenticate returns false with a nil error when the bind was refused without a diagnostic.
type Directory interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
	GetUserByUsername(ctx context.Context, username string) (*DomainUser, error)
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("directory: not configured")

// Disabled is the Directory used when no AD server is configured. Lookups miss; binds fail as unavailable.
type Disabled struct{}

func (Disabled) Authenticate(context.Context, string, string) (bool, error) { return false, ErrNotConfigured }

func (Disabled) GetUserByUsername(context.Context, string) (*DomainUser, error) { return nil, nil }

var diagnosticCode = regexp.MustCompile(`(?i)\bdata ([0-9a-f]{3,4})\b`)

type bindFailure struct {
	code     string
	keywords []string
	status   int
	message  string
}

// Sub-codes AD reports in the diagnostic text of a failed bind ("... data 52e, v4563").
var bindFailures = []bindFailure{
	{"52e", []string{"invalid credentials"}, 401, autherr.MsgInvalidCredentials},
	{"525", []string{"user not found"}, 401, autherr.MsgInvalidCredentials},
	{"530", nil, 403, "Not permitted to logon at this time"},
	{"531", nil, 403, "Not permitted to logon at this workstation"},
	{"532", []string{"password expired"}, 403, "Password has expired"},
	{"533", []string{"account disabled"}, 403, "Account is disabled"},
	{"701", []string{"account expired"}, 403, "Account has expired"},
	{"773", []string{"must reset password"}, 403, "User must reset password"},
	{"775", []string{"account locked"}, 403, "Account is locked out"},
}

// ClassifyBindError maps a failed directory bind to the error taxonomy. A nil err means the bind was refused
// without detail. Timeouts, network failures and unrecognized diagnostics are AuthBackendUnavailable.
func ClassifyBindError(err error) *autherr.Error {
	if err == nil {
		return autherr.InvalidCredentials()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, ErrNotConfigured) {
		return autherr.BackendUnavailable(err)
	}
	var le *ldap.Error
	if errors.As(err, &le) && le.ResultCode == ldap.ErrorNetwork {
		return autherr.BackendUnavailable(err)
	}

	text := strings.ToLower(err.Error())
	if m := diagnosticCode.FindStringSubmatch(text); m != nil {
		for _, f := range bindFailures {
			if f.code == m[1] {
				return failure(f, err)
			}
		}
	}
	for _, f := range bindFailures {
		for _, kw := range f.keywords {
			if strings.Contains(text, kw) {
				return failure(f, err)
			}
		}
	}
	return autherr.BackendUnavailable(err)
}

func failure(f bindFailure, cause error) *autherr.Error {
	if f.status == 401 {
		e := autherr.InvalidCredentials()
		e.Err = cause
		return e
	}
	e := autherr.CredentialsRestricted(f.message)
	e.Err = cause
	return e
}
