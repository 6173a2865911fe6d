// Package reaper hard-deletes tokens and sessions that stopped being valid more than a retention window ago.
// Rows are selected by expires_at, revoked_at and terminated_at, never by created_at, so recently
// invalidated rows stay available for audit.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	tokendomain "helpdesk-auth/backend/internal/token/domain"
)

// DefaultRetentionDays is used when no retention is configured.
const DefaultRetentionDays = 7

// lockKey is the Redis key guarding one reaper run across worker replicas.
const lockKey = "helpdesk-auth:reaper"

var (
	// ErrInvalidRetention is returned for a negative retention.
	ErrInvalidRetention = errors.New("reaper: retention days must not be negative")
	// ErrLocked is returned by Run when another replica holds the lock.
	ErrLocked = errors.New("reaper: another run is in progress")
)

// TokenStore is the token persistence the reaper needs. tokenType "" means every type.
type TokenStore interface {
	Count(ctx context.Context, tokenType string) (int64, error)
	PurgeExpired(ctx context.Context, tokenType string, cutoff time.Time) (int64, error)
	PurgeRevoked(ctx context.Context, tokenType string, cutoff time.Time) (int64, error)
}

// SessionStore deletes terminated sessions.
type SessionStore interface {
	PurgeTerminated(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeStats reports one token purge.
type PurgeStats struct {
	ExpiredDeleted int64 `json:"expired_deleted"`
	RevokedDeleted int64 `json:"revoked_deleted"`
	TotalBefore    int64 `json:"total_before"`
	TotalAfter     int64 `json:"total_after"`
	TotalDeleted   int64 `json:"total_deleted"`
}

// Summary is the combined result of Cleanup.
type Summary struct {
	RetentionDays   int        `json:"retention_days"`
	AuthTokens      PurgeStats `json:"auth_tokens"`
	RefreshTokens   PurgeStats `json:"refresh_tokens"`
	SessionsDeleted int64      `json:"sessions_deleted"`
	TotalDeleted    int64      `json:"total_deleted"`
}

// Reaper purges invalid rows past the retention window.
type Reaper struct {
	tokens   TokenStore
	sessions SessionStore
	lock     Locker
	lockTTL  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// New returns a Reaper. lock may be nil for single-replica deployments.
func New(tokens TokenStore, sessions SessionStore, lock Locker, log *zap.Logger) *Reaper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reaper{tokens: tokens, sessions: sessions, lock: lock, lockTTL: 10 * time.Minute, log: log, now: time.Now}
}

func (r *Reaper) cutoff(retentionDays int) (time.Time, error) {
	if retentionDays < 0 {
		return time.Time{}, ErrInvalidRetention
	}
	return r.now().UTC().AddDate(0, 0, -retentionDays), nil
}

// PurgeTokens deletes access tokens that expired or were revoked before now minus retentionDays.
func (r *Reaper) PurgeTokens(ctx context.Context, retentionDays int) (PurgeStats, error) {
	cutoff, err := r.cutoff(retentionDays)
	if err != nil {
		return PurgeStats{}, err
	}
	return r.purge(ctx, tokendomain.TypeAccess, cutoff)
}

// PurgeLegacyRefresh applies the token predicates to the refresh rows older clients left behind.
func (r *Reaper) PurgeLegacyRefresh(ctx context.Context, retentionDays int) (PurgeStats, error) {
	cutoff, err := r.cutoff(retentionDays)
	if err != nil {
		return PurgeStats{}, err
	}
	return r.purge(ctx, tokendomain.TypeRefresh, cutoff)
}

// PurgeSessions deletes inactive sessions terminated before now minus retentionDays.
func (r *Reaper) PurgeSessions(ctx context.Context, retentionDays int) (int64, error) {
	cutoff, err := r.cutoff(retentionDays)
	if err != nil {
		return 0, err
	}
	n, err := r.sessions.PurgeTerminated(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	deletedTotal.WithLabelValues("sessions", "terminated").Add(float64(n))
	return n, nil
}

func (r *Reaper) purge(ctx context.Context, tokenType string, cutoff time.Time) (PurgeStats, error) {
	var st PurgeStats
	var err error
	if st.TotalBefore, err = r.tokens.Count(ctx, tokenType); err != nil {
		return st, err
	}
	if st.ExpiredDeleted, err = r.tokens.PurgeExpired(ctx, tokenType, cutoff); err != nil {
		return st, err
	}
	if st.RevokedDeleted, err = r.tokens.PurgeRevoked(ctx, tokenType, cutoff); err != nil {
		return st, err
	}
	if st.TotalAfter, err = r.tokens.Count(ctx, tokenType); err != nil {
		return st, err
	}
	// Concurrent logins insert rows between the counts, so the difference can undercount.
	st.TotalDeleted = st.ExpiredDeleted + st.RevokedDeleted
	deletedTotal.WithLabelValues(tokenType+"_tokens", "expired").Add(float64(st.ExpiredDeleted))
	deletedTotal.WithLabelValues(tokenType+"_tokens", "revoked").Add(float64(st.RevokedDeleted))
	return st, nil
}

// Cleanup runs every purge with one retention and returns the combined summary.
func (r *Reaper) Cleanup(ctx context.Context, retentionDays int) (*Summary, error) {
	start := r.now()
	if _, err := r.cutoff(retentionDays); err != nil {
		return nil, err
	}
	sum := &Summary{RetentionDays: retentionDays}
	var err error
	if sum.AuthTokens, err = r.PurgeTokens(ctx, retentionDays); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("purge tokens: %w", err)
	}
	if sum.RefreshTokens, err = r.PurgeLegacyRefresh(ctx, retentionDays); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("purge refresh tokens: %w", err)
	}
	if sum.SessionsDeleted, err = r.PurgeSessions(ctx, retentionDays); err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("purge sessions: %w", err)
	}
	sum.TotalDeleted = sum.AuthTokens.TotalDeleted + sum.RefreshTokens.TotalDeleted + sum.SessionsDeleted

	runsTotal.WithLabelValues("ok").Inc()
	runDuration.Observe(r.now().Sub(start).Seconds())
	r.log.Info("retention cleanup completed",
		zap.Int("retention_days", retentionDays),
		zap.Int64("tokens_expired", sum.AuthTokens.ExpiredDeleted),
		zap.Int64("tokens_revoked", sum.AuthTokens.RevokedDeleted),
		zap.Int64("refresh_deleted", sum.RefreshTokens.TotalDeleted),
		zap.Int64("sessions_deleted", sum.SessionsDeleted),
		zap.Int64("tokens_remaining", sum.AuthTokens.TotalAfter),
	)
	return sum, nil
}

// Run is Cleanup under the distributed lock. It returns ErrLocked when another replica is running.
func (r *Reaper) Run(ctx context.Context, retentionDays int) (*Summary, error) {
	if r.lock == nil {
		return r.Cleanup(ctx, retentionDays)
	}
	release, ok, err := r.lock.Acquire(ctx, lockKey, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire reaper lock: %w", err)
	}
	if !ok {
		runsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrLocked
	}
	defer release()
	return r.Cleanup(ctx, retentionDays)
}
