// Package autherr is the error taxonomy of the login and session flows. Every failure that leaves the
// orchestrator is an *Error with a Kind; transports map the kind to a status and never show wrapped causes.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authentication failure.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindAccountInactive        Kind = "account_inactive"
	KindAccountBlocked         Kind = "account_blocked"
	KindInvalidCredentials     Kind = "invalid_credentials"
	KindAuthBackendUnavailable Kind = "auth_backend_unavailable"
	KindVersionRejected        Kind = "version_rejected"
	// KindIdentityConflict is retried by the identity resolver and never reaches a caller.
	KindIdentityConflict Kind = "identity_conflict"
	KindInternal         Kind = "internal"
)

// Fixed user-facing messages.
const (
	MsgInvalidCredentials = "Invalid username or password"
	MsgBackendUnavailable = "Unable to connect to authentication server"
	MsgAccountInactive    = "Account is inactive"
	MsgInternal           = "Internal server error"
)

// Rejection is the structured body returned when the version policy rejects a login.
type Rejection struct {
	Reason            string  `json:"reason"`
	TargetVersion     *string `json:"target_version"`
	Message           string  `json:"message"`
	VersionStatus     string  `json:"version_status"`
	CurrentVersion    string  `json:"current_version"`
	InstallerURL      string  `json:"installer_url,omitempty"`
	SilentInstallArgs string  `json:"silent_install_args,omitempty"`
}

// Error is a classified failure. Message is safe to show to clients; Err is for logs only.
type Error struct {
	Kind      Kind
	Status    int
	Message   string
	Rejection *Rejection
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindInternal for unclassified errors, and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// As returns err as *Error, classifying anything else as Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// NotFound reports an identity unresolvable in both the local store and the directory.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: message}
}

// AccountInactive reports a deactivated account.
func AccountInactive() *Error {
	return &Error{Kind: KindAccountInactive, Status: http.StatusForbidden, Message: MsgAccountInactive}
}

// AccountBlocked reports a blocked account; blockMessage is passed through verbatim.
func AccountBlocked(blockMessage string) *Error {
	if blockMessage == "" {
		blockMessage = "Account is blocked"
	}
	return &Error{Kind: KindAccountBlocked, Status: http.StatusForbidden, Message: "Account is blocked: " + blockMessage}
}

// InvalidCredentials reports a rejected password with the generic 401 message.
func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Status: http.StatusUnauthorized, Message: MsgInvalidCredentials}
}

// CredentialsRestricted reports credentials the directory accepted as valid but refused to log on (403).
func CredentialsRestricted(message string) *Error {
	return &Error{Kind: KindInvalidCredentials, Status: http.StatusForbidden, Message: message}
}

// BackendUnavailable reports an unreachable or unclassifiable directory failure.
func BackendUnavailable(cause error) *Error {
	return &Error{Kind: KindAuthBackendUnavailable, Status: http.StatusInternalServerError, Message: MsgBackendUnavailable, Err: cause}
}

// VersionRejected reports a client version refused by the version policy (HTTP 426).
func VersionRejected(r *Rejection) *Error {
	msg := "version rejected"
	if r != nil {
		msg = r.Message
	}
	return &Error{Kind: KindVersionRejected, Status: http.StatusUpgradeRequired, Message: msg, Rejection: r}
}

// IdentityConflict reports a lost insert race on a username.
func IdentityConflict(cause error) *Error {
	return &Error{Kind: KindIdentityConflict, Status: http.StatusConflict, Message: "identity created concurrently", Err: cause}
}

// Internal wraps any unexpected failure.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: MsgInternal, Err: cause}
}

// InternalMessage is Internal with a specific client-facing message.
func InternalMessage(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: message, Err: cause}
}
