package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	tokensvc "helpdesk-auth/backend/internal/token/service"
)

const bearerPrefix = "bearer "

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*tokensvc.Validation, error)
}

// RequireBearer rejects requests without a valid bearer token with 401 and stores the validation in the
// request context. Validation runs against the token row and its session on every request.
func RequireBearer(tokens TokenValidator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ExtractBearer(r)
			if raw == "" {
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			v, err := tokens.Validate(r.Context(), raw)
			if err != nil {
				log.Error("token validation failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
				writeDetail(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if !v.Valid {
				writeDetail(w, http.StatusUnauthorized, v.Reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithValidation(r.Context(), v)))
		})
	}
}

// ExtractBearer returns the bearer token of the Authorization header, or "" if missing or malformed.
func ExtractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
