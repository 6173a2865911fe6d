package autherr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAccountBlocked_Message(t *testing.T) {
	e := AccountBlocked("contact IT")
	if e.Message != "Account is blocked: contact IT" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", e.Status)
	}
	if got := AccountBlocked("").Message; got != "Account is blocked: Account is blocked" {
		t.Errorf("empty block message = %q", got)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Error("KindOf(nil) should be empty")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("unclassified errors are internal")
	}
	wrapped := fmt.Errorf("login: %w", InvalidCredentials())
	if KindOf(wrapped) != KindInvalidCredentials {
		t.Errorf("KindOf(wrapped) = %q", KindOf(wrapped))
	}
}

func TestAs_ClassifiesUnknownAsInternal(t *testing.T) {
	cause := errors.New("pool exhausted")
	e := As(cause)
	if e.Kind != KindInternal || e.Message != MsgInternal {
		t.Errorf("As = %+v", e)
	}
	if !errors.Is(e, cause) {
		t.Error("internal error should unwrap to its cause")
	}
	if As(nil) != nil {
		t.Error("As(nil) should be nil")
	}
}

func TestBackendUnavailable_HidesCause(t *testing.T) {
	e := BackendUnavailable(errors.New("dial tcp 10.0.0.5:389: i/o timeout"))
	if e.Message != MsgBackendUnavailable {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d", e.Status)
	}
}

func TestVersionRejected_CarriesRejection(t *testing.T) {
	target := "2.0.0"
	r := &Rejection{Reason: "version_enforced", TargetVersion: &target, Message: "App update required. This version is no longer allowed."}
	e := VersionRejected(r)
	if e.Status != http.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", e.Status)
	}
	if e.Rejection != r || e.Message != r.Message {
		t.Errorf("VersionRejected = %+v", e)
	}
}
