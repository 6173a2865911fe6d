package audit

import (
	"errors"
	"testing"

	"helpdesk-auth/backend/internal/audit/domain"
	"helpdesk-auth/backend/internal/autherr"
)

func TestFailureAction(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid credentials", autherr.InvalidCredentials(), domain.ActionLoginFailure},
		{"blocked", autherr.AccountBlocked("policy"), domain.ActionLoginFailure},
		{"backend", autherr.BackendUnavailable(errors.New("dial")), domain.ActionLoginFailure},
		{"version", autherr.VersionRejected(&autherr.Rejection{Reason: "outdated_enforced"}), domain.ActionVersionRejected},
		{"unclassified", errors.New("boom"), domain.ActionLoginFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FailureAction(tc.err); got != tc.want {
				t.Errorf("FailureAction = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFailureMetadata(t *testing.T) {
	meta := FailureMetadata(autherr.VersionRejected(&autherr.Rejection{
		Reason:         "unknown_version",
		Message:        "Unsupported version",
		VersionStatus:  "UNKNOWN",
		CurrentVersion: "0.0.1",
	}))
	if meta["error_kind"] != string(autherr.KindVersionRejected) {
		t.Errorf("error_kind = %v", meta["error_kind"])
	}
	if meta["reason"] != "unknown_version" || meta["version_status"] != "UNKNOWN" || meta["current_version"] != "0.0.1" {
		t.Errorf("rejection fields missing: %v", meta)
	}

	internal := FailureMetadata(autherr.Internal(errors.New("pq: secret detail")))
	if _, ok := internal["message"]; ok {
		t.Errorf("internal failures must not record a message: %v", internal)
	}
	if internal["error_kind"] != string(autherr.KindInternal) {
		t.Errorf("error_kind = %v", internal["error_kind"])
	}
}
