package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"helpdesk-auth/backend/internal/audit"
	cvdomain "helpdesk-auth/backend/internal/clientversion/domain"
	"helpdesk-auth/backend/internal/directory"
	"helpdesk-auth/backend/internal/security"
	sessiondomain "helpdesk-auth/backend/internal/session/domain"
	sessionsvc "helpdesk-auth/backend/internal/session/service"
	tokendomain "helpdesk-auth/backend/internal/token/domain"
	tokensvc "helpdesk-auth/backend/internal/token/service"
	userdomain "helpdesk-auth/backend/internal/user/domain"
	userrepo "helpdesk-auth/backend/internal/user/repository"
	"helpdesk-auth/backend/internal/versionpolicy"
)

// memStore holds users, sessions and tokens behind one lock so session termination can revoke tokens
// atomically, as the Postgres repositories do in one transaction.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*userdomain.User
	sessions map[string]*sessiondomain.Session
	tokens   map[string]*tokendomain.AuthToken
	creates  int
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*userdomain.User{},
		sessions: map[string]*sessiondomain.Session{},
		tokens:   map[string]*tokendomain.AuthToken{},
	}
}

func (m *memStore) addUser(u *userdomain.User) *userdomain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	}
	c := *u
	m.users[u.ID] = &c
	return u
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) tokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func (m *memStore) session(id string) *sessiondomain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	c := *s
	return &c
}

func (m *memStore) liveTokens(sessionID string, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.SessionID == sessionID && t.Live(now) {
			n++
		}
	}
	return n
}

// memUsers implements the user store.
type memUsers struct{ *memStore }

func (r memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (r memUsers) GetByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r memUsers) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("%w: %s", userrepo.ErrUsernameTaken, u.Username)
		}
	}
	c := *u
	r.users[u.ID] = &c
	r.creates++
	return nil
}

func (r memUsers) UpdateProfile(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return fmt.Errorf("user %s not found", u.ID)
	}
	c := *u
	r.users[u.ID] = &c
	return nil
}

// memSessions implements the session repository.
type memSessions struct{ *memStore }

func (r memSessions) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.sessions[s.ID] = &c
	return nil
}

func (r memSessions) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	return r.session(id), nil
}

func (r memSessions) Stamp(ctx context.Context, id, fingerprint string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.AuthenticatedAt = &at
		s.LastAuthRefresh = &at
		s.DeviceFingerprint = fingerprint
	}
	return nil
}

func (r memSessions) revokeLocked(match func(*tokendomain.AuthToken) bool, at time.Time) int64 {
	var n int64
	for _, t := range r.tokens {
		if !t.IsRevoked && match(t) {
			t.IsRevoked = true
			t.RevokedAt = &at
			n++
		}
	}
	return n
}

func (r memSessions) Terminate(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.IsActive {
		s.IsActive = false
		s.TerminatedAt = &at
	}
	r.revokeLocked(func(t *tokendomain.AuthToken) bool { return t.SessionID == id }, at)
	return nil
}

func (r memSessions) TerminateAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			s.TerminatedAt = &at
			n++
		}
	}
	r.revokeLocked(func(t *tokendomain.AuthToken) bool { return t.UserID == userID }, at)
	return n, nil
}

func (r memSessions) ListActiveByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memSessions) Heartbeat(ctx context.Context, id, ip string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.LastHeartbeat = &at
	if ip != "" {
		s.IPAddress = ip
	}
	return true, nil
}

func (r memSessions) ListStaleDesktop(ctx context.Context, before time.Time) ([]*sessiondomain.Session, error) {
	return nil, nil
}

func (r memSessions) PurgeTerminated(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// memTokens implements the issuer's token repository.
type memTokens struct{ *memStore }

func (r memTokens) ReplaceForSession(ctx context.Context, t *tokendomain.AuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	memSessions(r).revokeLocked(func(x *tokendomain.AuthToken) bool { return x.SessionID == t.SessionID }, t.CreatedAt)
	c := *t
	r.tokens[t.ID] = &c
	return nil
}

func (r memTokens) GetByHash(ctx context.Context, tokenHash string) (*tokendomain.AuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r memTokens) RevokeBySession(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memSessions(r).revokeLocked(func(t *tokendomain.AuthToken) bool { return t.SessionID == sessionID }, at), nil
}

func (r memTokens) RevokeByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memSessions(r).revokeLocked(func(t *tokendomain.AuthToken) bool { return t.UserID == userID }, at), nil
}

// fakeDirectory is an in-memory directory. When barrier is set, every lookup waits for all expected
// lookups to arrive so concurrent first logins reach the insert together.
type fakeDirectory struct {
	mu        sync.Mutex
	users     map[string]*directory.DomainUser
	passwords map[string]string
	lookupErr error
	bindErr   error
	barrier   *sync.WaitGroup
	lookups   int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[string]*directory.DomainUser{}, passwords: map[string]string{}}
}

func (d *fakeDirectory) add(du *directory.DomainUser, password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[strings.ToLower(du.Username)] = du
	d.passwords[strings.ToLower(du.Username)] = password
}

func (d *fakeDirectory) Authenticate(ctx context.Context, username, password string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bindErr != nil {
		return false, d.bindErr
	}
	want, ok := d.passwords[strings.ToLower(username)]
	return ok && want == password, nil
}

func (d *fakeDirectory) GetUserByUsername(ctx context.Context, username string) (*directory.DomainUser, error) {
	d.mu.Lock()
	d.lookups++
	barrier := d.barrier
	err := d.lookupErr
	du := d.users[strings.ToLower(username)]
	d.mu.Unlock()
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	if err != nil {
		return nil, err
	}
	if du == nil {
		return nil, nil
	}
	c := *du
	return &c, nil
}

func (d *fakeDirectory) lookupCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups
}

// fakeRegistry serves a fixed desktop registry.
type fakeRegistry struct {
	versions []cvdomain.ClientVersion
}

func (r *fakeRegistry) ListActive(ctx context.Context, platform string) ([]cvdomain.ClientVersion, error) {
	return r.versions, nil
}

// fakeSettings returns the current settings; tests flip them between logins.
type fakeSettings struct {
	mu sync.Mutex
	s  versionpolicy.PolicySettings
}

func (f *fakeSettings) set(s versionpolicy.PolicySettings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = s
}

func (f *fakeSettings) VersionPolicySettings(ctx context.Context, defaults versionpolicy.PolicySettings) (versionpolicy.PolicySettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s, nil
}

// auditRecorder captures audit events.
type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *auditRecorder) LogEvent(ctx context.Context, ev audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

type harness struct {
	store    *memStore
	dir      *fakeDirectory
	registry *fakeRegistry
	settings *fakeSettings
	audit    *auditRecorder
	hasher   *security.Hasher
	issuer   *tokensvc.Issuer
	svc      *AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	provider, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	h := &harness{
		store: newMemStore(),
		dir:   newFakeDirectory(),
		registry: &fakeRegistry{versions: []cvdomain.ClientVersion{
			{VersionString: "0.9.0", Platform: "desktop", OrderIndex: 1, IsActive: true},
			{VersionString: "1.0.0", Platform: "desktop", OrderIndex: 2, IsActive: true},
			{VersionString: "2.0.0", Platform: "desktop", OrderIndex: 3, IsActive: true, IsLatest: true, IsEnforced: true,
				InstallerURL: "https://updates.corp.local/app-2.0.0.msi", SilentInstallArgs: "/quiet"},
		}},
		settings: &fakeSettings{},
		audit:    &auditRecorder{},
		hasher:   security.NewHasher(4),
	}
	users := memUsers{h.store}
	h.issuer = tokensvc.NewIssuer(memTokens{h.store}, users, memSessions{h.store}, provider, nil)
	h.svc = NewAuthService(Deps{
		Resolver:  NewResolver(users, h.dir, 0, nil),
		Users:     users,
		Directory: h.dir,
		Sessions:  sessionsvc.NewManager(memSessions{h.store}, nil),
		Tokens:    h.issuer,
		Gate:      versionpolicy.NewGate(h.registry, h.settings, versionpolicy.PolicySettings{}, nil, nil),
		Hasher:    h.hasher,
		Audit:     h.audit,
	})
	return h
}

func (h *harness) addAdmin(t *testing.T, username, password string) *userdomain.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return h.store.addUser(&userdomain.User{
		Username:     username,
		Email:        username + "@corp.local",
		IsActive:     true,
		IsSuperAdmin: true,
		PasswordHash: hash,
	})
}
