// Package producer publishes auth events to Kafka.
package producer

import (
	"context"

	"helpdesk-auth/backend/internal/telemetry/domain"
)

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	Emit(ctx context.Context, event *domain.AuthEvent) error
	// Close releases the writer. Safe to call if already closed.
	Close() error
}
