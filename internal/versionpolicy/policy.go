// Package versionpolicy classifies a reported client version against the version registry and decides,
// separately, whether that classification blocks a login. Evaluate and Enforce are pure; Gate wires them
// to storage, metrics and logs.
package versionpolicy

import (
	"helpdesk-auth/backend/internal/autherr"
	"helpdesk-auth/backend/internal/clientversion/domain"
)

// Status is the classification of a client version.
type Status string

const (
	StatusUnknown          Status = "UNKNOWN"
	StatusCurrent          Status = "CURRENT"
	StatusOutdatedAdvisory Status = "OUTDATED_ADVISORY"
	StatusOutdatedEnforced Status = "OUTDATED_ENFORCED"
)

// RejectionReason is the reason field of every version rejection body.
const RejectionReason = "version_enforced"

// Rejection messages.
const (
	MsgOutdatedEnforced = "App update required. This version is no longer allowed."
	MsgUnknownVersion   = "Unknown app version. Please update to a supported version."
)

// Result is the transient classification of one login's client version. It is never persisted.
type Result struct {
	Status            Status
	TargetVersion     string // empty when there is no target
	IsEnforced        bool
	InstallerURL      string
	SilentInstallArgs string
}

// PolicySettings are the enforcement switches. Rejection happens only when EnforceEnabled is on and the
// switch for the specific status is on as well.
type PolicySettings struct {
	EnforceEnabled         bool
	RejectOutdatedEnforced bool
	RejectUnknown          bool
}

// Decision is the outcome of Enforce.
type Decision struct {
	Reject bool
	// Reason is "outdated_enforced" or "unknown" for rejections, empty otherwise.
	Reason  string
	Message string
}

// Allow is the decision that lets a login proceed.
var Allow = Decision{}

// Evaluate classifies clientVersion against the active registry entries of platform.
// Exact string match finds the client's entry; order_index decides whether it is behind the latest.
func Evaluate(clientVersion, platform string, registry []domain.ClientVersion) Result {
	var (
		client, latest *domain.ClientVersion
		found          bool
	)
	for i := range registry {
		v := &registry[i]
		if v.Platform != platform || !v.IsActive {
			continue
		}
		found = true
		if client == nil && v.VersionString == clientVersion {
			client = v
		}
		if latest == nil && v.IsLatest {
			latest = v
		}
	}
	if !found || client == nil {
		return Result{Status: StatusUnknown}
	}
	if latest == nil {
		return Result{Status: StatusCurrent, TargetVersion: client.VersionString}
	}
	if client.VersionString == latest.VersionString || client.OrderIndex >= latest.OrderIndex {
		return Result{Status: StatusCurrent, TargetVersion: latest.VersionString}
	}
	r := Result{
		Status:            StatusOutdatedAdvisory,
		TargetVersion:     latest.VersionString,
		InstallerURL:      latest.InstallerURL,
		SilentInstallArgs: latest.SilentInstallArgs,
	}
	if latest.IsEnforced {
		r.Status = StatusOutdatedEnforced
		r.IsEnforced = true
	}
	return r
}

// Enforce decides whether r blocks the login under s. Every combination not listed rejects nothing.
func Enforce(r Result, s PolicySettings) Decision {
	if !s.EnforceEnabled {
		return Allow
	}
	switch {
	case r.Status == StatusOutdatedEnforced && s.RejectOutdatedEnforced:
		return Decision{Reject: true, Reason: "outdated_enforced", Message: MsgOutdatedEnforced}
	case r.Status == StatusUnknown && s.RejectUnknown:
		return Decision{Reject: true, Reason: "unknown", Message: MsgUnknownVersion}
	}
	return Allow
}

// Rejection builds the structured body a client needs to self-upgrade.
func (r Result) Rejection(clientVersion string, d Decision) *autherr.Rejection {
	out := &autherr.Rejection{
		Reason:            RejectionReason,
		Message:           d.Message,
		VersionStatus:     string(r.Status),
		CurrentVersion:    clientVersion,
		InstallerURL:      r.InstallerURL,
		SilentInstallArgs: r.SilentInstallArgs,
	}
	if r.TargetVersion != "" {
		target := r.TargetVersion
		out.TargetVersion = &target
	}
	return out
}
