// Package service issues bearer tokens bound to sessions and validates presented tokens against stored state.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/security"
	sessiondomain "helpdesk-auth/backend/internal/session/domain"
	"helpdesk-auth/backend/internal/token/domain"
	userdomain "helpdesk-auth/backend/internal/user/domain"
)

// Validation failure reasons, checked in this order.
const (
	ReasonInvalidToken    = "Invalid token"
	ReasonRefreshToken    = "Refresh tokens are no longer supported"
	ReasonUserNotFound    = "User not found"
	ReasonSessionInactive = "Session not found or inactive"
	ReasonTokenRevoked    = "Token not found or revoked"
	ReasonTokenExpired    = "Token expired"
)

// TokenRepo is the minimal token repository needed by the issuer.
type TokenRepo interface {
	ReplaceForSession(ctx context.Context, t *domain.AuthToken) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.AuthToken, error)
}

// UserReader loads users by id.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// SessionReader loads sessions by id.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// Validation is the outcome of Validate. When Valid is false only Reason is set.
type Validation struct {
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Username  string     `json:"username,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	User    *userdomain.User       `json:"-"`
	Session *sessiondomain.Session `json:"-"`
}

func invalid(reason string) *Validation {
	return &Validation{Valid: false, Reason: reason}
}

// Issuer mints access tokens and validates them.
type Issuer struct {
	tokens   TokenRepo
	users    UserReader
	sessions SessionReader
	provider *security.TokenProvider
	log      *zap.Logger
	now      func() time.Time
}

// NewIssuer returns an Issuer. log may be nil.
func NewIssuer(tokens TokenRepo, users UserReader, sessions SessionReader, provider *security.TokenProvider, log *zap.Logger) *Issuer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Issuer{
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		provider: provider,
		log:      log,
		now:      time.Now,
	}
}

// TTL is the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.provider.AccessTTL() }

// Issue signs a token for user bound to sessionID, stores its hash and revokes any earlier token of
// the session in the same transaction. Returns the raw token, which is never stored.
func (i *Issuer) Issue(ctx context.Context, user *userdomain.User, sessionID string, deviceInfo map[string]any) (string, time.Time, error) {
	now := i.now().UTC()
	raw, claims, err := i.provider.IssueAccess(security.Subject{
		UserID:       user.ID,
		Username:     user.Username,
		SessionID:    sessionID,
		IsTechnician: user.IsTechnician,
		IsSuperAdmin: user.IsSuperAdmin,
	}, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	expiresAt := claims.ExpiresAt.Time
	t := &domain.AuthToken{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		SessionID:  sessionID,
		TokenHash:  security.HashToken(raw),
		TokenType:  domain.TypeAccess,
		DeviceInfo: deviceInfo,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := i.tokens.ReplaceForSession(ctx, t); err != nil {
		return "", time.Time{}, err
	}
	return raw, expiresAt, nil
}

// Validate checks a presented token against its signature, the user, the session and the stored row.
// A non-nil error means storage failed; every other failure is reported as Valid=false with a reason.
func (i *Issuer) Validate(ctx context.Context, raw string) (*Validation, error) {
	claims, err := i.provider.Decode(raw)
	if err != nil {
		return invalid(ReasonInvalidToken), nil
	}
	if claims.Type != domain.TypeAccess {
		return invalid(ReasonRefreshToken), nil
	}

	user, err := i.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return invalid(ReasonUserNotFound), nil
	}

	sess, err := i.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.IsActive || sess.UserID != user.ID {
		return invalid(ReasonSessionInactive), nil
	}

	stored, err := i.tokens.GetByHash(ctx, security.HashToken(raw))
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.IsRevoked || stored.SessionID != sess.ID {
		return invalid(ReasonTokenRevoked), nil
	}
	if !i.now().Before(stored.ExpiresAt) {
		return invalid(ReasonTokenExpired), nil
	}

	expiresAt := stored.ExpiresAt
	return &Validation{
		Valid:     true,
		UserID:    user.ID,
		Username:  user.Username,
		SessionID: sess.ID,
		ExpiresAt: &expiresAt,
		User:      user,
		Session:   sess,
	}, nil
}
