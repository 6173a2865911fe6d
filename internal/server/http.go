// Package server assembles the HTTP API and the gRPC health endpoint.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	identitysvc "helpdesk-auth/backend/internal/identity/service"
	"helpdesk-auth/backend/internal/reaper"
	"helpdesk-auth/backend/internal/server/middleware"
	sessiondomain "helpdesk-auth/backend/internal/session/domain"
	tokensvc "helpdesk-auth/backend/internal/token/service"
)

// AuthAPI is the login orchestrator as seen by the HTTP handlers.
type AuthAPI interface {
	LoginPasswordless(ctx context.Context, username string, device identitysvc.DeviceInfo, clientIP string) (*identitysvc.LoginResult, error)
	LoginSSO(ctx context.Context, username string, device identitysvc.DeviceInfo, clientIP string) (*identitysvc.LoginResult, error)
	LoginAD(ctx context.Context, username, password string, device identitysvc.DeviceInfo, clientIP string) (*identitysvc.LoginResult, error)
	LoginAdmin(ctx context.Context, username, password string, device identitysvc.DeviceInfo, clientIP string) (*identitysvc.LoginResult, error)
	Logout(ctx context.Context, userID, sessionID string, revokeAll bool, ip string) (*identitysvc.LogoutResult, error)
	Validate(ctx context.Context, raw string) (*tokensvc.Validation, error)
	ActiveSessions(ctx context.Context, userID, currentID string) ([]sessiondomain.SessionInfo, error)
	TerminateSession(ctx context.Context, userID, sessionID, ip string) error
	Heartbeat(ctx context.Context, sessionID, ip string) error
}

// Cleaner runs the retention reaper on demand.
type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (*reaper.Summary, error)
}

// RouterOptions configures NewRouter. Auth is required; the rest are optional.
type RouterOptions struct {
	Auth          AuthAPI
	Cleaner       Cleaner
	RetentionDays int
	RateLimiter   *middleware.RateLimiter
	Health        http.Handler
	Metrics       http.Handler
	Log           *zap.Logger
}

// NewRouter returns the chi router for the auth API under /api/v1/auth, plus /health and /metrics.
func NewRouter(opts RouterOptions) chi.Router {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = reaper.DefaultRetentionDays
	}
	h := &handlers{auth: opts.Auth, cleaner: opts.Cleaner, retentionDays: opts.RetentionDays, log: opts.Log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(opts.Log))
	r.Use(middleware.Metrics)

	if opts.Health != nil {
		r.Method(http.MethodGet, "/health", opts.Health)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(opts.RateLimiter.Handler)
			r.Post("/login", h.loginPasswordless)
			r.Post("/sso-login", h.loginSSO)
			r.Post("/ad-login", h.loginAD)
			r.Post("/admin-login", h.loginAdmin)
		})
		r.Post("/validate", h.validate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireBearer(opts.Auth, opts.Log))
			r.Post("/logout", h.logout)
			r.Get("/me", h.me)
			r.Get("/sessions", h.listSessions)
			r.Delete("/sessions", h.revokeAllSessions)
			r.Delete("/sessions/{id}", h.terminateSession)
			r.Post("/heartbeat", h.heartbeat)
			r.Post("/cleanup", h.cleanup)
		})
	})
	return r
}
