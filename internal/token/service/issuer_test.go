package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"helpdesk-auth/backend/internal/security"
	sessiondomain "helpdesk-auth/backend/internal/session/domain"
	"helpdesk-auth/backend/internal/token/domain"
	userdomain "helpdesk-auth/backend/internal/user/domain"
)

type memTokenRepo struct {
	mu     sync.Mutex
	tokens []*domain.AuthToken
}

func (r *memTokenRepo) ReplaceForSession(_ context.Context, t *domain.AuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, old := range r.tokens {
		if old.SessionID == t.SessionID && !old.IsRevoked {
			at := t.CreatedAt
			old.IsRevoked = true
			old.RevokedAt = &at
		}
	}
	cp := *t
	r.tokens = append(r.tokens, &cp)
	return nil
}

func (r *memTokenRepo) GetByHash(_ context.Context, h string) (*domain.AuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == h {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTokenRepo) revoke(match func(*domain.AuthToken) bool, at time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if match(t) && !t.IsRevoked {
			t.IsRevoked = true
			t.RevokedAt = &at
			n++
		}
	}
	return n
}

func (r *memTokenRepo) RevokeBySession(_ context.Context, id string, at time.Time) (int64, error) {
	return r.revoke(func(t *domain.AuthToken) bool { return t.SessionID == id }, at), nil
}

func (r *memTokenRepo) RevokeByUser(_ context.Context, id string, at time.Time) (int64, error) {
	return r.revoke(func(t *domain.AuthToken) bool { return t.UserID == id }, at), nil
}

func (r *memTokenRepo) live(sessionID string, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if t.SessionID == sessionID && t.Live(now) {
			n++
		}
	}
	return n
}

type memUsers map[string]*userdomain.User

func (m memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) { return m[id], nil }

type memSessions map[string]*sessiondomain.Session

func (m memSessions) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	return m[id], nil
}

func newTestIssuer(t *testing.T) (*Issuer, *memTokenRepo, memUsers, memSessions) {
	t.Helper()
	p, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	tokens := &memTokenRepo{}
	users := memUsers{"u1": {ID: "u1", Username: "jdoe", IsActive: true}}
	sessions := memSessions{"s1": {ID: "s1", UserID: "u1", IsActive: true, Variant: sessiondomain.VariantWeb}}
	return NewIssuer(tokens, users, sessions, p, nil), tokens, users, sessions
}

func TestIssuer_IssueAndValidate(t *testing.T) {
	iss, tokens, users, _ := newTestIssuer(t)
	ctx := context.Background()

	raw, exp, err := iss.Issue(ctx, users["u1"], "s1", map[string]any{"os": "Windows"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if d := time.Until(exp); d < 29*24*time.Hour || d > 30*24*time.Hour {
		t.Errorf("expires in %v, want ~30 days", d)
	}
	for _, stored := range tokens.tokens {
		if stored.TokenHash == raw {
			t.Fatal("raw token must not be stored")
		}
	}

	v, err := iss.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.Valid {
		t.Fatalf("Validate: reason %q, want valid", v.Reason)
	}
	if v.UserID != "u1" || v.SessionID != "s1" || v.Username != "jdoe" {
		t.Errorf("Validate = %+v", v)
	}
}

func TestIssuer_AtMostOneLiveTokenPerSession(t *testing.T) {
	iss, tokens, users, _ := newTestIssuer(t)
	ctx := context.Background()

	var first string
	for i := 0; i < 5; i++ {
		raw, _, err := iss.Issue(ctx, users["u1"], "s1", nil)
		if err != nil {
			t.Fatalf("Issue #%d: %v", i, err)
		}
		if i == 0 {
			first = raw
		}
		if n := tokens.live("s1", time.Now()); n != 1 {
			t.Fatalf("after issue #%d live tokens = %d, want 1", i, n)
		}
	}
	v, err := iss.Validate(ctx, first)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.Valid || v.Reason != ReasonTokenRevoked {
		t.Errorf("superseded token: valid=%v reason=%q, want %q", v.Valid, v.Reason, ReasonTokenRevoked)
	}
}

func TestIssuer_ValidateReasons(t *testing.T) {
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		iss, _, _, _ := newTestIssuer(t)
		v, _ := iss.Validate(ctx, "not-a-jwt")
		if v.Reason != ReasonInvalidToken {
			t.Errorf("Reason = %q, want %q", v.Reason, ReasonInvalidToken)
		}
	})

	t.Run("refresh type", func(t *testing.T) {
		iss, _, _, _ := newTestIssuer(t)
		raw, err := iss.provider.IssueTypedForTest(security.Subject{UserID: "u1", SessionID: "s1"}, "refresh", time.Now())
		if err != nil {
			t.Fatalf("IssueTypedForTest: %v", err)
		}
		v, _ := iss.Validate(ctx, raw)
		if v.Reason != ReasonRefreshToken {
			t.Errorf("Reason = %q, want %q", v.Reason, ReasonRefreshToken)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		iss, _, users, _ := newTestIssuer(t)
		raw, _, err := iss.Issue(ctx, users["u1"], "s1", nil)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		delete(users, "u1")
		v, _ := iss.Validate(ctx, raw)
		if v.Reason != ReasonUserNotFound {
			t.Errorf("Reason = %q, want %q", v.Reason, ReasonUserNotFound)
		}
	})

	t.Run("inactive session wins over live token", func(t *testing.T) {
		iss, _, users, sessions := newTestIssuer(t)
		raw, _, err := iss.Issue(ctx, users["u1"], "s1", nil)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		sessions["s1"].IsActive = false
		v, _ := iss.Validate(ctx, raw)
		if v.Valid || v.Reason != ReasonSessionInactive {
			t.Errorf("valid=%v reason=%q, want %q", v.Valid, v.Reason, ReasonSessionInactive)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		iss, tokens, users, _ := newTestIssuer(t)
		raw, _, err := iss.Issue(ctx, users["u1"], "s1", nil)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if n, _ := tokens.RevokeBySession(ctx, "s1", time.Now()); n != 1 {
			t.Fatalf("RevokeBySession = %d, want 1", n)
		}
		if n, _ := tokens.RevokeBySession(ctx, "s1", time.Now()); n != 0 {
			t.Fatalf("second RevokeBySession = %d, want 0", n)
		}
		v, _ := iss.Validate(ctx, raw)
		if v.Reason != ReasonTokenRevoked {
			t.Errorf("Reason = %q, want %q", v.Reason, ReasonTokenRevoked)
		}
	})

	t.Run("expired", func(t *testing.T) {
		iss, _, users, _ := newTestIssuer(t)
		raw, _, err := iss.Issue(ctx, users["u1"], "s1", nil)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		iss.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
		v, _ := iss.Validate(ctx, raw)
		if v.Reason != ReasonTokenExpired {
			t.Errorf("Reason = %q, want %q", v.Reason, ReasonTokenExpired)
		}
	})
}

func TestIssuer_ValidateAfterUserRevocation(t *testing.T) {
	iss, tokens, users, sessions := newTestIssuer(t)
	ctx := context.Background()
	sessions["s2"] = &sessiondomain.Session{ID: "s2", UserID: "u1", IsActive: true}

	a, _, _ := iss.Issue(ctx, users["u1"], "s1", nil)
	b, _, _ := iss.Issue(ctx, users["u1"], "s2", nil)
	if _, err := tokens.RevokeByUser(ctx, "u1", time.Now()); err != nil {
		t.Fatalf("RevokeByUser: %v", err)
	}
	for _, raw := range []string{a, b} {
		v, _ := iss.Validate(ctx, raw)
		if v.Valid {
			t.Error("token should be invalid after user revocation")
		}
	}
	if n := tokens.live("s1", time.Now()) + tokens.live("s2", time.Now()); n != 0 {
		t.Errorf("live tokens = %d, want 0", n)
	}
}
