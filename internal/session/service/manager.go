// Package service manages the session lifecycle for both desktop and web clients.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/session/domain"
	"helpdesk-auth/backend/internal/session/repository"
)

var (
	// ErrSessionNotFound is returned when a session does not exist or belongs to another user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInactive is returned by Heartbeat for a terminated session.
	ErrSessionInactive = errors.New("session is not active")
	// ErrInvalidVariant is returned when CreateParams carries an unknown variant.
	ErrInvalidVariant = errors.New("invalid session variant")
)

// CreateParams describes a new session. Desktop fields are ignored for web sessions and vice versa.
type CreateParams struct {
	Variant           domain.Variant
	UserID            string
	IPAddress         string
	AuthMethod        domain.AuthMethod
	DeviceFingerprint string
	AppVersion        string
	ComputerName      string
	OSInfo            string
	Browser           string
	UserAgent         string
}

// Manager creates, stamps and terminates sessions.
type Manager struct {
	repo repository.Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewManager returns a Manager. log may be nil.
func NewManager(repo repository.Repository, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{repo: repo, log: log, now: time.Now}
}

// Create inserts exactly one new session of p.Variant. It never reuses an existing row.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*domain.Session, error) {
	now := m.now().UTC()
	s := &domain.Session{
		ID:                uuid.New().String(),
		UserID:            p.UserID,
		Variant:           p.Variant,
		IPAddress:         orUnknown(p.IPAddress),
		AuthMethod:        p.AuthMethod,
		DeviceFingerprint: p.DeviceFingerprint,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	switch p.Variant {
	case domain.VariantDesktop:
		s.AppVersion = strings.TrimSpace(p.AppVersion)
		if s.AppVersion == "" {
			s.AppVersion = domain.DefaultDesktopAppVersion
		}
		s.ComputerName = p.ComputerName
		s.OSInfo = p.OSInfo
	case domain.VariantWeb:
		s.Browser = p.Browser
		s.UserAgent = p.UserAgent
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariant, p.Variant)
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	m.log.Debug("session created",
		zap.String("session_id", s.ID),
		zap.String("user_id", s.UserID),
		zap.String("variant", string(s.Variant)),
		zap.String("auth_method", string(s.AuthMethod)),
	)
	return s, nil
}

// Stamp records the authentication time and device fingerprint on a session.
func (m *Manager) Stamp(ctx context.Context, s *domain.Session, fingerprint string, at time.Time) error {
	if err := m.repo.Stamp(ctx, s.ID, fingerprint, at); err != nil {
		return err
	}
	s.AuthenticatedAt = &at
	s.LastAuthRefresh = &at
	s.DeviceFingerprint = fingerprint
	return nil
}

// Terminate deactivates the session and revokes its tokens. Terminating twice is not an error.
func (m *Manager) Terminate(ctx context.Context, id string) error {
	return m.repo.Terminate(ctx, id, m.now().UTC())
}

// TerminateOwned terminates a session only if it belongs to userID.
func (m *Manager) TerminateOwned(ctx context.Context, userID, id string) error {
	s, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s == nil || s.UserID != userID {
		return ErrSessionNotFound
	}
	return m.Terminate(ctx, id)
}

// TerminateAllForUser terminates every session of the user, both variants, and revokes all their tokens atomically.
func (m *Manager) TerminateAllForUser(ctx context.Context, userID string) (int, error) {
	n, err := m.repo.TerminateAllForUser(ctx, userID, m.now().UTC())
	if err != nil {
		return 0, err
	}
	m.log.Info("all sessions terminated", zap.String("user_id", userID), zap.Int("sessions", n))
	return n, nil
}

// ActiveSessions lists the user's active sessions. currentID, when set, marks the caller's own session.
func (m *Manager) ActiveSessions(ctx context.Context, userID, currentID string) ([]domain.SessionInfo, error) {
	list, err := m.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionInfo, 0, len(list))
	for _, s := range list {
		info := s.Info()
		info.IsCurrent = s.ID == currentID
		out = append(out, info)
	}
	return out, nil
}

// Heartbeat marks an active session as alive and updates its address when ip is given.
func (m *Manager) Heartbeat(ctx context.Context, id, ip string) error {
	ok, err := m.repo.Heartbeat(ctx, id, strings.TrimSpace(ip), m.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionInactive
	}
	return nil
}

// TerminateStale terminates active desktop sessions with no activity for longer than timeout.
// A zero timeout disables the sweep.
func (m *Manager) TerminateStale(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}
	stale, err := m.repo.ListStaleDesktop(ctx, m.now().UTC().Add(-timeout))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range stale {
		if err := m.Terminate(ctx, s.ID); err != nil {
			m.log.Warn("terminate stale session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		m.log.Info("stale desktop sessions terminated", zap.Int("count", n), zap.Duration("timeout", timeout))
	}
	return n, nil
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
