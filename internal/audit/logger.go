// Package audit records auth lifecycle events in audit_logs and streams them as auth events.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/audit/domain"
	auditrepo "helpdesk-auth/backend/internal/audit/repository"
	"helpdesk-auth/backend/internal/telemetry"
	teldomain "helpdesk-auth/backend/internal/telemetry/domain"
)

// Event is one auditable auth action.
type Event struct {
	Action     string
	Resource   string
	UserID     string
	Username   string
	SessionID  string
	AuthMethod string
	IP         string
	Metadata   map[string]any
}

// AuditLogger writes a single audit event. Used by the login orchestrator and session endpoints.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, ev Event)
}

// Logger implements AuditLogger using the audit repository and an optional event emitter.
type Logger struct {
	repo    auditrepo.Repository
	emitter telemetry.EventEmitter
	log     *zap.Logger
	now     func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and streams to emitter.
// Either may be nil.
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, emitter: emitter, log: log, now: time.Now}
}

// LogEvent writes one audit log entry and emits the matching auth event asynchronously.
func (l *Logger) LogEvent(ctx context.Context, ev Event) {
	if l == nil {
		return
	}
	ip := ev.IP
	if ip == "" {
		ip = "unknown"
	}
	resource := ev.Resource
	if resource == "" {
		resource = domain.ResourceAuth
	}
	meta := map[string]any{}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	if ev.Username != "" {
		meta["username"] = ev.Username
	}
	if ev.SessionID != "" {
		meta["session_id"] = ev.SessionID
	}
	if ev.AuthMethod != "" {
		meta["auth_method"] = ev.AuthMethod
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    ev.UserID,
		Action:    ev.Action,
		Resource:  resource,
		IP:        ip,
		Metadata:  meta,
		CreatedAt: l.now().UTC(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.log.Warn("audit write failed", zap.String("action", ev.Action), zap.String("resource", resource), zap.Error(err))
		}
	}
	telemetry.EmitAsync(l.emitter, &teldomain.AuthEvent{
		ID:         entry.ID,
		EventType:  ev.Action,
		UserID:     ev.UserID,
		Username:   ev.Username,
		SessionID:  ev.SessionID,
		AuthMethod: ev.AuthMethod,
		IP:         ip,
		Metadata:   ev.Metadata,
		CreatedAt:  entry.CreatedAt,
	}, l.log)
}
