package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	identitysvc "helpdesk-auth/backend/internal/identity/service"
	"helpdesk-auth/backend/internal/platform/rbac"
	"helpdesk-auth/backend/internal/server/clientip"
	"helpdesk-auth/backend/internal/server/middleware"
	tokensvc "helpdesk-auth/backend/internal/token/service"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	auth          AuthAPI
	cleaner       Cleaner
	retentionDays int
	log           *zap.Logger
}

type loginRequest struct {
	Username   string                 `json:"username"`
	Password   string                 `json:"password"`
	DeviceInfo identitysvc.DeviceInfo `json:"device_info"`
	IPAddress  string                 `json:"ip_address"`
}

type logoutRequest struct {
	RevokeAll bool `json:"revoke_all"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type heartbeatRequest struct {
	IPAddress string `json:"ip_address"`
}

type cleanupRequest struct {
	RetentionDays *int `json:"retention_days"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (req *loginRequest) validate(needPassword bool) string {
	req.Username = strings.TrimSpace(req.Username)
	if n := utf8.RuneCountInString(req.Username); n < 3 || n > 50 {
		return "username must be between 3 and 50 characters"
	}
	if needPassword && req.Password == "" {
		return "password is required"
	}
	if req.DeviceInfo.IPAddress == "" {
		req.DeviceInfo.IPAddress = strings.TrimSpace(req.IPAddress)
	}
	return ""
}

type passwordLogin func(ctx context.Context, username, password string, device identitysvc.DeviceInfo, clientIP string) (*identitysvc.LoginResult, error)

func (h *handlers) serveLogin(w http.ResponseWriter, r *http.Request, needPassword bool, login passwordLogin) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	if msg := req.validate(needPassword); msg != "" {
		writeDetail(w, http.StatusUnprocessableEntity, msg)
		return
	}
	res, err := login(r.Context(), req.Username, req.Password, req.DeviceInfo, clientip.FromRequest(r))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) loginPasswordless(w http.ResponseWriter, r *http.Request) {
	h.serveLogin(w, r, false, func(ctx context.Context, username, _ string, d identitysvc.DeviceInfo, ip string) (*identitysvc.LoginResult, error) {
		return h.auth.LoginPasswordless(ctx, username, d, ip)
	})
}

func (h *handlers) loginSSO(w http.ResponseWriter, r *http.Request) {
	h.serveLogin(w, r, false, func(ctx context.Context, username, _ string, d identitysvc.DeviceInfo, ip string) (*identitysvc.LoginResult, error) {
		return h.auth.LoginSSO(ctx, username, d, ip)
	})
}

func (h *handlers) loginAD(w http.ResponseWriter, r *http.Request) {
	h.serveLogin(w, r, true, h.auth.LoginAD)
}

func (h *handlers) loginAdmin(w http.ResponseWriter, r *http.Request) {
	h.serveLogin(w, r, true, h.auth.LoginAdmin)
}

func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "token is required")
		return
	}
	v, err := h.auth.Validate(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// caller returns the validation stored by RequireBearer.
func caller(r *http.Request) *tokensvc.Validation {
	v, _ := middleware.ValidationFrom(r.Context())
	return v
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	v := caller(r)
	res, err := h.auth.Logout(r.Context(), v.UserID, v.SessionID, req.RevokeAll, clientip.FromRequest(r))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) revokeAllSessions(w http.ResponseWriter, r *http.Request) {
	v := caller(r)
	res, err := h.auth.Logout(r.Context(), v.UserID, v.SessionID, true, clientip.FromRequest(r))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	v := caller(r)
	if v.User == nil {
		writeDetail(w, http.StatusUnauthorized, tokensvc.ReasonUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, identitysvc.SummaryOf(v.User))
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	v := caller(r)
	list, err := h.auth.ActiveSessions(r.Context(), v.UserID, v.SessionID)
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) terminateSession(w http.ResponseWriter, r *http.Request) {
	v := caller(r)
	id := chi.URLParam(r, "id")
	if err := h.auth.TerminateSession(r.Context(), v.UserID, id, clientip.FromRequest(r)); err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: identitysvc.MsgSessionTerminated})
}

func (h *handlers) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		ip = clientip.FromRequest(r)
	}
	if err := h.auth.Heartbeat(r.Context(), caller(r).SessionID, ip); err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Heartbeat recorded"})
}

func (h *handlers) cleanup(w http.ResponseWriter, r *http.Request) {
	v, err := rbac.RequireSuperAdmin(r.Context())
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, rbac.ErrUnauthenticated) {
			status = http.StatusUnauthorized
		}
		writeDetail(w, status, "Super admin privileges required")
		return
	}
	if h.cleaner == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Cleanup is not available")
		return
	}
	var req cleanupRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	days := h.retentionDays
	if req.RetentionDays != nil {
		days = *req.RetentionDays
	}
	if days < 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "retention_days must not be negative")
		return
	}
	summary, err := h.cleaner.Cleanup(r.Context(), days)
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	h.log.Info("cleanup requested",
		zap.String("user_id", v.UserID),
		zap.Int("retention_days", days),
		zap.Int64("total_deleted", summary.TotalDeleted))
	writeJSON(w, http.StatusOK, summary)
}
