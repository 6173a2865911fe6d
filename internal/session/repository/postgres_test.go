package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"helpdesk-auth/backend/internal/db/dbtest"
	"helpdesk-auth/backend/internal/session/domain"
	tokendomain "helpdesk-auth/backend/internal/token/domain"
	tokenrepo "helpdesk-auth/backend/internal/token/repository"
	userdomain "helpdesk-auth/backend/internal/user/domain"
	userrepo "helpdesk-auth/backend/internal/user/repository"
)

func seedUser(t *testing.T, ctx context.Context, repo *userrepo.PostgresRepository) string {
	t.Helper()
	now := time.Now().UTC()
	u := &userdomain.User{ID: uuid.New().String(), Username: "u-" + uuid.NewString()[:8], Email: "x@corp.local",
		IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func newSession(userID string, v domain.Variant) *domain.Session {
	now := time.Now().UTC()
	s := &domain.Session{ID: uuid.New().String(), UserID: userID, Variant: v, IPAddress: "10.0.0.1",
		AuthMethod: domain.AuthSSO, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if v == domain.VariantDesktop {
		s.AppVersion = domain.DefaultDesktopAppVersion
	}
	return s
}

func issue(t *testing.T, ctx context.Context, tokens *tokenrepo.PostgresRepository, s *domain.Session) {
	t.Helper()
	now := time.Now().UTC()
	err := tokens.ReplaceForSession(ctx, &tokendomain.AuthToken{ID: uuid.New().String(), UserID: s.UserID,
		SessionID: s.ID, TokenHash: uuid.NewString(), TokenType: tokendomain.TypeAccess,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	if err != nil {
		t.Fatalf("ReplaceForSession: %v", err)
	}
}

func TestPostgresRepository_TerminateRevokesTokens(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool)
	tokens := tokenrepo.NewPostgresRepository(pool)
	userID := seedUser(t, ctx, userrepo.NewPostgresRepository(pool))

	s := newSession(userID, domain.VariantDesktop)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	issue(t, ctx, tokens, s)
	issue(t, ctx, tokens, s)

	var live int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM auth_tokens WHERE session_id = $1 AND NOT is_revoked`, s.ID).Scan(&live); err != nil {
		t.Fatalf("count: %v", err)
	}
	if live != 1 {
		t.Fatalf("live tokens after two issues = %d, want 1", live)
	}

	now := time.Now().UTC()
	if err := repo.Terminate(ctx, s.ID, now); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := repo.Terminate(ctx, s.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("Terminate twice: %v", err)
	}
	got, err := repo.GetByID(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.IsActive || got.TerminatedAt == nil {
		t.Errorf("session not terminated: %+v", got)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM auth_tokens WHERE session_id = $1 AND NOT is_revoked`, s.ID).Scan(&live); err != nil {
		t.Fatalf("count: %v", err)
	}
	if live != 0 {
		t.Errorf("live tokens after terminate = %d, want 0", live)
	}

	ok, err := repo.Heartbeat(ctx, s.ID, "", now)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if ok {
		t.Error("Heartbeat must not touch a terminated session")
	}
}

func TestPostgresRepository_TerminateAllForUser(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool)
	tokens := tokenrepo.NewPostgresRepository(pool)
	userID := seedUser(t, ctx, userrepo.NewPostgresRepository(pool))

	for _, v := range []domain.Variant{domain.VariantDesktop, domain.VariantDesktop, domain.VariantWeb} {
		s := newSession(userID, v)
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
		issue(t, ctx, tokens, s)
	}

	n, err := repo.TerminateAllForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		t.Fatalf("TerminateAllForUser: %v", err)
	}
	if n != 3 {
		t.Errorf("terminated = %d, want 3", n)
	}
	active, err := repo.ListActiveByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListActiveByUser: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active sessions = %d, want 0", len(active))
	}
}

func TestPostgresRepository_StaleAndPurge(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool)
	userID := seedUser(t, ctx, userrepo.NewPostgresRepository(pool))

	old := newSession(userID, domain.VariantDesktop)
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	fresh := newSession(userID, domain.VariantDesktop)
	for _, s := range []*domain.Session{old, fresh} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	stale, err := repo.ListStaleDesktop(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListStaleDesktop: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("stale = %v, want only %s", stale, old.ID)
	}

	if err := repo.Terminate(ctx, old.ID, time.Now().UTC().Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	n, err := repo.PurgeTerminated(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeTerminated: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
}
