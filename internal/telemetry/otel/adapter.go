package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"helpdesk-auth/backend/internal/telemetry"
	"helpdesk-auth/backend/internal/telemetry/domain"
)

// recordEmitter is the subset of otellog.Logger used here.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends auth events as OTel log records.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("helpdesk-auth/events")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.AuthEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit maps the event onto a log record: metadata becomes the JSON body, identifiers become attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.AuthEvent) error {
	if event == nil {
		return nil
	}
	var rec otellog.Record
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetEventName(event.EventType)
	sev := otellog.SeverityInfo
	if event.EventType == domain.EventLoginFailure || event.EventType == domain.EventVersionRejected {
		sev = otellog.SeverityWarn
	}
	rec.SetSeverity(sev)
	if len(event.Metadata) > 0 {
		if b, err := json.Marshal(event.Metadata); err == nil {
			rec.SetBody(otellog.StringValue(string(b)))
		}
	}
	for _, kv := range []struct{ k, v string }{
		{"event_type", event.EventType},
		{"user_id", event.UserID},
		{"username", event.Username},
		{"session_id", event.SessionID},
		{"auth_method", event.AuthMethod},
		{"client_ip", event.IP},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
