package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeviceFingerprint derives a short, stable identifier for a client device from the username and
// whichever of computer name, OS and browser are known. Empty parts are skipped.
func DeviceFingerprint(username, computerName, os, browser string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{username, computerName, os, browser} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])[:16]
}
