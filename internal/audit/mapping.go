package audit

import (
	"helpdesk-auth/backend/internal/audit/domain"
	"helpdesk-auth/backend/internal/autherr"
)

// FailureAction returns the audit action for a failed login: version rejections are recorded
// separately so operators can track outdated clients.
func FailureAction(err error) string {
	if autherr.KindOf(err) == autherr.KindVersionRejected {
		return domain.ActionVersionRejected
	}
	return domain.ActionLoginFailure
}

// FailureMetadata describes err for the audit trail. Internal causes are not recorded verbatim.
func FailureMetadata(err error) map[string]any {
	meta := map[string]any{"error_kind": string(autherr.KindOf(err))}
	e := autherr.As(err)
	if e == nil {
		return meta
	}
	if e.Kind != autherr.KindInternal {
		meta["message"] = e.Message
	}
	if r := e.Rejection; r != nil {
		meta["reason"] = r.Reason
		meta["version_status"] = r.VersionStatus
		meta["current_version"] = r.CurrentVersion
	}
	return meta
}
