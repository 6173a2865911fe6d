// Package clientip extracts the caller address from HTTP requests and gRPC contexts.
package clientip

import (
	"context"
	"net"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// Unknown is returned when no address can be determined.
const Unknown = "unknown"

// resolve picks the first X-Forwarded-For hop, then X-Real-IP, then the transport peer.
func resolve(forwardedFor, realIP, peerAddr string) string {
	if s := strings.TrimSpace(forwardedFor); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(realIP); s != "" {
		return s
	}
	if peerAddr == "" {
		return Unknown
	}
	if host, _, err := net.SplitHostPort(peerAddr); err == nil {
		return host
	}
	return peerAddr
}

// FromRequest returns the client IP of r.
func FromRequest(r *http.Request) string {
	return resolve(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), r.RemoteAddr)
}

// FromContext returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or the peer.
func FromContext(ctx context.Context) string {
	var xff, xri, addr string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			xff = vals[0]
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			xri = vals[0]
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
	}
	return resolve(xff, xri, addr)
}
