package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"helpdesk-auth/backend/internal/db/dbtest"
	"helpdesk-auth/backend/internal/token/domain"
)

func TestPostgresRepository_PurgeByRetention(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool)

	userID, sessionID := uuid.NewString(), uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO users (id, username, email) VALUES ($1, 'retention', 'r@corp.local')`, userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO sessions (id, user_id, variant, auth_method) VALUES ($1, $2, 'web', 'admin')`, sessionID, userID); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	now := time.Now().UTC()
	mk := func(revokedAgo time.Duration, typ string) *domain.AuthToken {
		at := now.Add(-revokedAgo)
		return &domain.AuthToken{ID: uuid.NewString(), UserID: userID, SessionID: sessionID, TokenHash: uuid.NewString(),
			TokenType: typ, ExpiresAt: now.Add(time.Hour), IsRevoked: true, RevokedAt: &at, CreatedAt: now.Add(-30 * 24 * time.Hour)}
	}
	old := mk(8*24*time.Hour, domain.TypeAccess)
	recent := mk(2*24*time.Hour, domain.TypeAccess)
	legacy := mk(9*24*time.Hour, domain.TypeRefresh)
	for _, tok := range []*domain.AuthToken{old, recent, legacy} {
		// Insert directly so ReplaceForSession does not rewrite revoked_at of earlier rows.
		if _, err := pool.Exec(ctx, `INSERT INTO auth_tokens (`+tokenColumns+`) VALUES ($1,$2,$3,$4,$5,'{}',$6,$7,$8,$9)`,
			tok.ID, tok.UserID, tok.SessionID, tok.TokenHash, tok.TokenType, tok.ExpiresAt, tok.IsRevoked, tok.RevokedAt, tok.CreatedAt); err != nil {
			t.Fatalf("insert token: %v", err)
		}
	}

	cutoff := now.Add(-7 * 24 * time.Hour)
	n, err := repo.PurgeRevoked(ctx, domain.TypeAccess, cutoff)
	if err != nil {
		t.Fatalf("PurgeRevoked: %v", err)
	}
	if n != 1 {
		t.Errorf("purged access = %d, want 1", n)
	}
	if got, _ := repo.GetByHash(ctx, recent.TokenHash); got == nil {
		t.Error("recently revoked token must survive")
	}
	if got, _ := repo.GetByHash(ctx, old.TokenHash); got != nil {
		t.Error("token revoked 8 days ago should be purged")
	}

	n, err = repo.PurgeRevoked(ctx, domain.TypeRefresh, cutoff)
	if err != nil || n != 1 {
		t.Errorf("purged refresh = %d, %v; want 1", n, err)
	}
	total, err := repo.Count(ctx, "")
	if err != nil || total != 1 {
		t.Errorf("Count = %d, %v; want 1", total, err)
	}
}

func TestPostgresRepository_ReplaceAndRevoke(t *testing.T) {
	pool := dbtest.Setup(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool)

	userID, sessionID := uuid.NewString(), uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO users (id, username, email) VALUES ($1, 'replace', 'r@corp.local')`, userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO sessions (id, user_id, variant, auth_method) VALUES ($1, $2, 'web', 'admin')`, sessionID, userID); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	now := time.Now().UTC()
	first := &domain.AuthToken{ID: uuid.NewString(), UserID: userID, SessionID: sessionID, TokenHash: "h1",
		TokenType: domain.TypeAccess, DeviceInfo: map[string]any{"os": "Windows"}, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	second := &domain.AuthToken{ID: uuid.NewString(), UserID: userID, SessionID: sessionID, TokenHash: "h2",
		TokenType: domain.TypeAccess, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	for _, tok := range []*domain.AuthToken{first, second} {
		if err := repo.ReplaceForSession(ctx, tok); err != nil {
			t.Fatalf("ReplaceForSession: %v", err)
		}
	}

	h1, err := repo.GetByHash(ctx, "h1")
	if err != nil || h1 == nil {
		t.Fatalf("GetByHash(h1): %v", err)
	}
	if !h1.IsRevoked || h1.RevokedAt == nil {
		t.Error("first token should be revoked by the second issue")
	}
	if h1.DeviceInfo["os"] != "Windows" {
		t.Errorf("DeviceInfo = %v", h1.DeviceInfo)
	}

	if n, err := repo.RevokeByUser(ctx, userID, now); err != nil || n != 1 {
		t.Errorf("RevokeByUser = %d, %v; want 1", n, err)
	}
	if n, err := repo.RevokeByUser(ctx, userID, now); err != nil || n != 0 {
		t.Errorf("second RevokeByUser = %d, %v; want 0", n, err)
	}
}
