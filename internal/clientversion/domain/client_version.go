package domain

import "time"

// PlatformDesktop is the only platform whose logins pass the version gate.
const PlatformDesktop = "desktop"

// ClientVersion is one entry of the client version registry. Version strings are opaque;
// ordering comes only from OrderIndex (higher is newer).
type ClientVersion struct {
	ID                string
	VersionString     string
	Platform          string
	OrderIndex        int
	IsActive          bool
	IsLatest          bool
	IsEnforced        bool
	InstallerURL      string
	SilentInstallArgs string
	ReleaseNotes      string
	CreatedAt         time.Time
}
