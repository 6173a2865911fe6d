package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/autherr"
	"helpdesk-auth/backend/internal/server/middleware"
)

// errorBody is the JSON error shape. Detail is a message, or the rejection object for a 426.
type errorBody struct {
	Detail any `json:"detail"`
}

// WriteError maps err to its status and client-safe body. Wrapped causes are logged, never returned.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	ae := autherr.As(err)
	if ae.Kind == autherr.KindInternal || ae.Kind == autherr.KindAuthBackendUnavailable {
		log.Error("request failed",
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(ae.Kind)),
			zap.Error(err))
	}
	body := errorBody{Detail: ae.Message}
	if ae.Kind == autherr.KindVersionRejected && ae.Rejection != nil {
		body.Detail = ae.Rejection
	}
	writeJSON(w, ae.Status, body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
