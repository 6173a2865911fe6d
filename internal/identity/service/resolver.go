// Package service resolves login identities against the local user store and the directory, and
// orchestrates the four login methods into sessions and tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/autherr"
	"helpdesk-auth/backend/internal/directory"
	userdomain "helpdesk-auth/backend/internal/user/domain"
	userrepo "helpdesk-auth/backend/internal/user/repository"
)

// DefaultRefreshThreshold is how old a domain user's local copy may get before the next login refreshes it.
const DefaultRefreshThreshold = 24 * time.Hour

// MsgConflictRequeryFailed is returned when a creation conflict is reported but the winning row cannot be read.
const MsgConflictRequeryFailed = "Failed to retrieve user after creation conflict"

// UserStore is the minimal user repository needed by the resolver.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateProfile(ctx context.Context, u *userdomain.User) error
}

// Resolver maps directory records onto local user rows. Creation is optimistic: the unique index on
// lower(username) decides concurrent first logins and the loser re-reads and updates the winner's row.
type Resolver struct {
	users     UserStore
	dir       directory.Directory
	threshold time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewResolver returns a Resolver. dir nil means no directory; threshold <= 0 selects DefaultRefreshThreshold.
func NewResolver(users UserStore, dir directory.Directory, threshold time.Duration, log *zap.Logger) *Resolver {
	if dir == nil {
		dir = directory.Disabled{}
	}
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{users: users, dir: dir, threshold: threshold, log: log, now: time.Now}
}

// Resolve returns the local user for username. A local miss falls back to the directory and creates the row;
// a stale domain user is refreshed, and a failed refresh keeps the local copy.
func (r *Resolver) Resolve(ctx context.Context, username string) (*userdomain.User, error) {
	name := userdomain.NormalizeUsername(username)
	if name == "" {
		return nil, autherr.NotFound("User not found")
	}
	u, err := r.users.GetByUsername(ctx, name)
	if err != nil {
		return nil, autherr.Internal(fmt.Errorf("lookup user: %w", err))
	}
	if u != nil {
		if u.NeedsDirectoryRefresh(r.now(), r.threshold) {
			return r.refresh(ctx, u), nil
		}
		return u, nil
	}

	du, err := r.dir.GetUserByUsername(ctx, name)
	if err != nil {
		return nil, autherr.BackendUnavailable(err)
	}
	if du == nil {
		return nil, autherr.NotFound(fmt.Sprintf("User %s not found in database or Active Directory", name))
	}
	return r.create(ctx, name, du)
}

// ResolveAuthenticated is used after a successful directory bind. The directory record is required and
// always overwrites the local copy.
func (r *Resolver) ResolveAuthenticated(ctx context.Context, username string) (*userdomain.User, error) {
	name := userdomain.NormalizeUsername(username)
	du, err := r.dir.GetUserByUsername(ctx, name)
	if err != nil {
		return nil, autherr.BackendUnavailable(err)
	}
	if du == nil {
		return nil, autherr.NotFound(fmt.Sprintf("User %s authenticated but not found in AD", name))
	}
	u, err := r.users.GetByUsername(ctx, name)
	if err != nil {
		return nil, autherr.Internal(fmt.Errorf("lookup user: %w", err))
	}
	if u == nil {
		return r.create(ctx, name, du)
	}
	return r.update(ctx, u, du)
}

func (r *Resolver) create(ctx context.Context, name string, du *directory.DomainUser) (*userdomain.User, error) {
	now := r.now().UTC()
	username := strings.TrimSpace(du.Username)
	if username == "" {
		username = name
	}
	u := &userdomain.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     username + "@domain.local",
		IsActive:  true,
		IsDomain:  true,
		CreatedAt: now,
	}
	r.apply(ctx, u, du, now)

	err := r.users.Create(ctx, u)
	if err == nil {
		r.log.Info("user created from directory", zap.String("user_id", u.ID), zap.String("username", u.Username))
		return u, nil
	}
	if !errors.Is(err, userrepo.ErrUsernameTaken) {
		return nil, autherr.Internal(fmt.Errorf("create user: %w", err))
	}

	conflict := autherr.IdentityConflict(err)
	r.log.Info("concurrent first login, re-reading user", zap.String("username", username), zap.Error(conflict))
	existing, err := r.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, autherr.InternalMessage(MsgConflictRequeryFailed, fmt.Errorf("re-read user: %w", err))
	}
	if existing == nil {
		return nil, autherr.InternalMessage(MsgConflictRequeryFailed, conflict)
	}
	return r.update(ctx, existing, du)
}

func (r *Resolver) update(ctx context.Context, u *userdomain.User, du *directory.DomainUser) (*userdomain.User, error) {
	updated := *u
	r.apply(ctx, &updated, du, r.now().UTC())
	if err := r.users.UpdateProfile(ctx, &updated); err != nil {
		return nil, autherr.Internal(fmt.Errorf("update user from directory: %w", err))
	}
	return &updated, nil
}

// refresh re-reads a stale domain user. Any failure is logged and the stale copy is returned.
func (r *Resolver) refresh(ctx context.Context, u *userdomain.User) *userdomain.User {
	start := r.now()
	du, err := r.dir.GetUserByUsername(ctx, u.Username)
	if err != nil {
		r.log.Warn("directory refresh failed, using stored profile",
			zap.String("username", u.Username), zap.Duration("ad_refresh", r.now().Sub(start)), zap.Error(err))
		return u
	}
	if du == nil {
		return u
	}
	updated, err := r.update(ctx, u, du)
	if err != nil {
		r.log.Warn("directory refresh not saved, using stored profile", zap.String("username", u.Username), zap.Error(err))
		return u
	}
	r.log.Debug("user refreshed from directory", zap.String("username", u.Username), zap.Duration("ad_refresh", r.now().Sub(start)))
	return updated
}

// apply copies non-empty directory fields onto u. id and username are never touched.
func (r *Resolver) apply(ctx context.Context, u *userdomain.User, du *directory.DomainUser, now time.Time) {
	setIf(&u.Email, du.Email)
	setIf(&u.FullName, du.FullName)
	setIf(&u.PhoneNumber, du.PhoneNumber)
	setIf(&u.Title, du.Title)
	setIf(&u.Office, du.Office)
	setIf(&u.DirectManagerName, du.DirectManagerName)
	if id := r.managerID(ctx, du.ManagerUsername); id != nil && *id != u.ID {
		u.ManagerID = id
	}
	u.IsDomain = true
	u.LastSeen = &now
	u.UpdatedAt = now
}

// managerID looks the manager up locally only; an unknown manager stays unset.
func (r *Resolver) managerID(ctx context.Context, managerUsername string) *string {
	name := userdomain.NormalizeUsername(managerUsername)
	if name == "" {
		return nil
	}
	m, err := r.users.GetByUsername(ctx, name)
	if err != nil {
		r.log.Debug("manager lookup failed", zap.String("manager", name), zap.Error(err))
		return nil
	}
	if m == nil {
		return nil
	}
	id := m.ID
	return &id
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
