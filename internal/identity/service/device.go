package service

import (
	"strings"

	"helpdesk-auth/backend/internal/security"
)

// DeviceInfo is the client-reported device description sent with every login.
type DeviceInfo struct {
	OS           string `json:"os,omitempty"`
	Browser      string `json:"browser,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	ComputerName string `json:"computer_name,omitempty"`
	AppVersion   string `json:"app_version,omitempty"`
}

// normalize trims every field and fills the defaults: os "unknown", and app_version "web" for web logins.
// Desktop logins keep an empty app_version so the session manager applies its own default.
func (d DeviceInfo) normalize(web bool) DeviceInfo {
	out := DeviceInfo{
		OS:           strings.TrimSpace(d.OS),
		Browser:      strings.TrimSpace(d.Browser),
		UserAgent:    strings.TrimSpace(d.UserAgent),
		IPAddress:    strings.TrimSpace(d.IPAddress),
		ComputerName: strings.TrimSpace(d.ComputerName),
		AppVersion:   strings.TrimSpace(d.AppVersion),
	}
	if out.OS == "" {
		out.OS = "unknown"
	}
	if web && out.AppVersion == "" {
		out.AppVersion = "web"
	}
	return out
}

// sessionIP prefers the address the client reports (its LAN address) over the one the request came from.
func (d DeviceInfo) sessionIP(clientIP string) string {
	if d.IPAddress != "" {
		return d.IPAddress
	}
	if ip := strings.TrimSpace(clientIP); ip != "" {
		return ip
	}
	return "unknown"
}

func (d DeviceInfo) fingerprint(username string) string {
	return security.DeviceFingerprint(username, d.ComputerName, d.OS, d.Browser)
}

// snapshot is stored with the issued token.
func (d DeviceInfo) snapshot() map[string]any {
	m := map[string]any{"os": d.OS}
	for k, v := range map[string]string{
		"browser":       d.Browser,
		"user_agent":    d.UserAgent,
		"ip_address":    d.IPAddress,
		"computer_name": d.ComputerName,
		"app_version":   d.AppVersion,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}
