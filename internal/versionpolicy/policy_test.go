package versionpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-auth/backend/internal/clientversion/domain"
)

func registry() []domain.ClientVersion {
	return []domain.ClientVersion{
		{VersionString: "2.0.0", Platform: domain.PlatformDesktop, OrderIndex: 20, IsActive: true, IsLatest: true,
			InstallerURL: "https://dl.example.com/helpdesk-2.0.0.msi", SilentInstallArgs: "/qn"},
		{VersionString: "1.5.0", Platform: domain.PlatformDesktop, OrderIndex: 15, IsActive: true},
		{VersionString: "1.0.0", Platform: domain.PlatformDesktop, OrderIndex: 10, IsActive: true},
		{VersionString: "0.9.0", Platform: domain.PlatformDesktop, OrderIndex: 9, IsActive: false},
		{VersionString: "3.0.0", Platform: "mobile", OrderIndex: 30, IsActive: true, IsLatest: true},
	}
}

func TestEvaluate(t *testing.T) {
	enforced := registry()
	enforced[0].IsEnforced = true

	tests := []struct {
		name     string
		version  string
		registry []domain.ClientVersion
		want     Result
	}{
		{"latest is current", "2.0.0", registry(), Result{Status: StatusCurrent, TargetVersion: "2.0.0"}},
		{"older advisory", "1.5.0", registry(), Result{
			Status: StatusOutdatedAdvisory, TargetVersion: "2.0.0",
			InstallerURL: "https://dl.example.com/helpdesk-2.0.0.msi", SilentInstallArgs: "/qn",
		}},
		{"older enforced", "1.0.0", enforced, Result{
			Status: StatusOutdatedEnforced, TargetVersion: "2.0.0", IsEnforced: true,
			InstallerURL: "https://dl.example.com/helpdesk-2.0.0.msi", SilentInstallArgs: "/qn",
		}},
		{"not registered", "9.9.9", registry(), Result{Status: StatusUnknown}},
		{"inactive entry is unknown", "0.9.0", registry(), Result{Status: StatusUnknown}},
		{"other platform ignored", "3.0.0", registry(), Result{Status: StatusUnknown}},
		{"empty registry", "1.0.0", nil, Result{Status: StatusUnknown}},
		{"no latest", "1.0.0", registry()[1:4], Result{Status: StatusCurrent, TargetVersion: "1.0.0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.version, domain.PlatformDesktop, tc.registry))
		})
	}
}

func TestEvaluate_AheadOfLatestIsCurrent(t *testing.T) {
	reg := append(registry(), domain.ClientVersion{
		VersionString: "2.1.0-beta", Platform: domain.PlatformDesktop, OrderIndex: 21, IsActive: true,
	})
	got := Evaluate("2.1.0-beta", domain.PlatformDesktop, reg)
	assert.Equal(t, StatusCurrent, got.Status)
	assert.Equal(t, "2.0.0", got.TargetVersion)
}

func TestEvaluate_IsPure(t *testing.T) {
	reg := registry()
	first := Evaluate("1.5.0", domain.PlatformDesktop, reg)
	for range 5 {
		require.Equal(t, first, Evaluate("1.5.0", domain.PlatformDesktop, reg))
	}
	assert.Equal(t, registry(), reg, "Evaluate must not mutate the registry")
}

func TestEnforce_Matrix(t *testing.T) {
	statuses := []Status{StatusUnknown, StatusCurrent, StatusOutdatedAdvisory, StatusOutdatedEnforced}
	for _, st := range statuses {
		for mask := range 8 {
			s := PolicySettings{
				EnforceEnabled:         mask&1 != 0,
				RejectOutdatedEnforced: mask&2 != 0,
				RejectUnknown:          mask&4 != 0,
			}
			d := Enforce(Result{Status: st}, s)
			wantReject := s.EnforceEnabled &&
				((st == StatusOutdatedEnforced && s.RejectOutdatedEnforced) || (st == StatusUnknown && s.RejectUnknown))
			assert.Equal(t, wantReject, d.Reject, "status=%s settings=%+v", st, s)
			if !wantReject {
				assert.Equal(t, Allow, d)
			}
		}
	}
}

func TestEnforce_Reasons(t *testing.T) {
	on := PolicySettings{EnforceEnabled: true, RejectOutdatedEnforced: true, RejectUnknown: true}

	d := Enforce(Result{Status: StatusOutdatedEnforced}, on)
	assert.Equal(t, "outdated_enforced", d.Reason)
	assert.Equal(t, MsgOutdatedEnforced, d.Message)

	d = Enforce(Result{Status: StatusUnknown}, on)
	assert.Equal(t, "unknown", d.Reason)
	assert.Equal(t, MsgUnknownVersion, d.Message)
}

func TestRejection(t *testing.T) {
	r := Result{Status: StatusOutdatedEnforced, TargetVersion: "2.0.0", IsEnforced: true, InstallerURL: "https://dl/x.msi", SilentInstallArgs: "/qn"}
	rej := r.Rejection("1.0.0", Decision{Reject: true, Reason: "outdated_enforced", Message: MsgOutdatedEnforced})
	require.NotNil(t, rej.TargetVersion)
	assert.Equal(t, "2.0.0", *rej.TargetVersion)
	assert.Equal(t, RejectionReason, rej.Reason)
	assert.Equal(t, "OUTDATED_ENFORCED", rej.VersionStatus)
	assert.Equal(t, "1.0.0", rej.CurrentVersion)
	assert.Equal(t, "https://dl/x.msi", rej.InstallerURL)

	unknown := Result{Status: StatusUnknown}.Rejection("7.7.7", Decision{Reject: true, Reason: "unknown", Message: MsgUnknownVersion})
	assert.Nil(t, unknown.TargetVersion)
	assert.Equal(t, MsgUnknownVersion, unknown.Message)
}
