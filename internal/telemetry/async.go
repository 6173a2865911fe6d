package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration bounds Drain during shutdown. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// inflight tracks emits started by EmitAsync that have not returned yet.
var inflight sync.WaitGroup

// Drain blocks until every in-flight EmitAsync call has returned or timeout elapses.
// It reports whether all emits finished. Call it after the servers stop and before closing emitters.
func Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// EmitAsync runs Emit in a goroutine with its own timeout so request cancellation does not abort it.
// emitter and event may be nil; then it returns without starting a goroutine.
func EmitAsync(emitter EventEmitter, event *domain.AuthEvent, log *zap.Logger) {
	if emitter == nil || event == nil {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			log.Warn("async auth event emit failed", zap.String("event_type", event.EventType), zap.Error(err))
		}
	}()
}
