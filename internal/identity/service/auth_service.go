package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/audit"
	auditdomain "helpdesk-auth/backend/internal/audit/domain"
	"helpdesk-auth/backend/internal/autherr"
	"helpdesk-auth/backend/internal/directory"
	"helpdesk-auth/backend/internal/security"
	sessiondomain "helpdesk-auth/backend/internal/session/domain"
	sessionsvc "helpdesk-auth/backend/internal/session/service"
	tokensvc "helpdesk-auth/backend/internal/token/service"
	userdomain "helpdesk-auth/backend/internal/user/domain"
	"helpdesk-auth/backend/internal/versionpolicy"
)

// Redirect hints returned with a successful login.
const (
	RedirectTechnician  = "/support-center/requests"
	RedirectSelfService = "/ticket"
)

// Logout messages.
const (
	MsgSessionTerminated  = "Session terminated successfully"
	MsgAllSessionsRevoked = "All sessions revoked successfully"
)

// MsgAdminMisconfigured is returned when an admin account has no local password.
const MsgAdminMisconfigured = "Admin user is not configured properly"

// adminUsername routes AD logins to the local admin path.
const adminUsername = "admin"

// UserSummary is the user block of a login response.
type UserSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	IsActive     bool   `json:"is_active"`
	IsTechnician bool   `json:"is_technician"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// SummaryOf returns the response view of u.
func SummaryOf(u *userdomain.User) UserSummary {
	return UserSummary{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		IsActive:     u.IsActive,
		IsTechnician: u.IsTechnician,
		IsSuperAdmin: u.IsSuperAdmin,
	}
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	SessionID   string      `json:"session_id"`
	RedirectTo  string      `json:"redirect_to"`
	User        UserSummary `json:"user"`
}

// LogoutResult is the outcome of Logout. SessionID is nil when every session was revoked.
type LogoutResult struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// UserFinder is the minimal user lookup needed for the admin path.
type UserFinder interface {
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
}

// SessionManager is the subset of the session manager used by the orchestrator.
type SessionManager interface {
	Create(ctx context.Context, p sessionsvc.CreateParams) (*sessiondomain.Session, error)
	Stamp(ctx context.Context, s *sessiondomain.Session, fingerprint string, at time.Time) error
	Terminate(ctx context.Context, id string) error
	TerminateOwned(ctx context.Context, userID, id string) error
	TerminateAllForUser(ctx context.Context, userID string) (int, error)
	ActiveSessions(ctx context.Context, userID, currentID string) ([]sessiondomain.SessionInfo, error)
	Heartbeat(ctx context.Context, id, ip string) error
}

// TokenIssuer is the subset of the token issuer used by the orchestrator.
type TokenIssuer interface {
	Issue(ctx context.Context, user *userdomain.User, sessionID string, deviceInfo map[string]any) (string, time.Time, error)
	Validate(ctx context.Context, raw string) (*tokensvc.Validation, error)
	TTL() time.Duration
}

// VersionGate decides whether a desktop client version may log in.
type VersionGate interface {
	Check(ctx context.Context, clientVersion, platform, username, ip string) (*versionpolicy.Result, error)
}

// Deps are the collaborators of AuthService. Directory, Gate and Audit may be nil.
type Deps struct {
	Resolver  *Resolver
	Users     UserFinder
	Directory directory.Directory
	Sessions  SessionManager
	Tokens    TokenIssuer
	Gate      VersionGate
	Hasher    *security.Hasher
	Audit     audit.AuditLogger
	Log       *zap.Logger
}

// AuthService runs the login state machine for the four methods: resolve identity, check account state,
// gate the client version (desktop only), create the session, issue the token, stamp the session.
// Each step runs only after the previous one committed, so a failure leaves no session or token behind it.
type AuthService struct {
	resolver *Resolver
	users    UserFinder
	dir      directory.Directory
	sessions SessionManager
	tokens   TokenIssuer
	gate     VersionGate
	hasher   *security.Hasher
	audit    audit.AuditLogger
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	if d.Directory == nil {
		d.Directory = directory.Disabled{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &AuthService{
		resolver: d.Resolver,
		users:    d.Users,
		dir:      d.Directory,
		sessions: d.Sessions,
		tokens:   d.Tokens,
		gate:     d.Gate,
		hasher:   d.Hasher,
		audit:    d.Audit,
		log:      d.Log,
		tracer:   otel.Tracer("helpdesk-auth/identity"),
		now:      time.Now,
	}
}

// LoginPasswordless logs in by username alone and creates a web session.
func (s *AuthService) LoginPasswordless(ctx context.Context, username string, device DeviceInfo, clientIP string) (*LoginResult, error) {
	return s.login(ctx, sessiondomain.AuthPasswordless, username, device, clientIP, func(ctx context.Context, st *steps) (*userdomain.User, error) {
		defer st.mark("db_lookup")
		return s.resolver.Resolve(ctx, username)
	})
}

// LoginSSO logs in a user already authenticated by the workstation and creates a desktop session.
func (s *AuthService) LoginSSO(ctx context.Context, username string, device DeviceInfo, clientIP string) (*LoginResult, error) {
	return s.login(ctx, sessiondomain.AuthSSO, username, device, clientIP, func(ctx context.Context, st *steps) (*userdomain.User, error) {
		defer st.mark("db_lookup")
		return s.resolver.Resolve(ctx, username)
	})
}

// LoginAD binds to the directory with the given credentials and creates a desktop session.
// The literal username "admin" is handled by LoginAdmin.
func (s *AuthService) LoginAD(ctx context.Context, username, password string, device DeviceInfo, clientIP string) (*LoginResult, error) {
	if strings.EqualFold(strings.TrimSpace(username), adminUsername) {
		return s.LoginAdmin(ctx, username, password, device, clientIP)
	}
	return s.login(ctx, sessiondomain.AuthAD, username, device, clientIP, func(ctx context.Context, st *steps) (*userdomain.User, error) {
		name := userdomain.NormalizeUsername(username)
		ok, err := s.dir.Authenticate(ctx, name, password)
		st.mark("ad_auth")
		if err != nil || !ok {
			return nil, directory.ClassifyBindError(err)
		}
		defer st.mark("db_lookup")
		return s.resolver.ResolveAuthenticated(ctx, name)
	})
}

// LoginAdmin checks the password against the local bcrypt hash and creates a web session.
// The directory is never consulted.
func (s *AuthService) LoginAdmin(ctx context.Context, username, password string, device DeviceInfo, clientIP string) (*LoginResult, error) {
	return s.login(ctx, sessiondomain.AuthAdmin, username, device, clientIP, func(ctx context.Context, st *steps) (*userdomain.User, error) {
		defer st.mark("db_lookup")
		u, err := s.users.GetByUsername(ctx, userdomain.NormalizeUsername(username))
		if err != nil {
			return nil, autherr.Internal(fmt.Errorf("lookup admin: %w", err))
		}
		if u == nil {
			return nil, autherr.InvalidCredentials()
		}
		if u.PasswordHash == "" {
			return nil, autherr.InternalMessage(MsgAdminMisconfigured, nil)
		}
		if !s.hasher.Matches(u.PasswordHash, password) {
			return nil, autherr.InvalidCredentials()
		}
		return u, nil
	})
}

type resolveFunc func(ctx context.Context, st *steps) (*userdomain.User, error)

func (s *AuthService) login(ctx context.Context, method sessiondomain.AuthMethod, username string, device DeviceInfo, clientIP string, resolve resolveFunc) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.login", trace.WithAttributes(
		attribute.String("auth.method", string(method)),
		attribute.String("auth.username", username),
	))
	defer span.End()

	st := newSteps(s.now)
	web := method == sessiondomain.AuthPasswordless || method == sessiondomain.AuthAdmin
	device = device.normalize(web)
	ip := device.sessionIP(clientIP)

	user, err := resolve(ctx, st)
	if err != nil {
		return nil, s.fail(ctx, span, method, username, ip, nil, st, err)
	}
	if err := checkAccount(user); err != nil {
		return nil, s.fail(ctx, span, method, username, ip, user, st, err)
	}
	span.SetAttributes(attribute.String("auth.user_id", user.ID))

	variant := sessiondomain.VariantWeb
	if !web {
		variant = sessiondomain.VariantDesktop
		if s.gate != nil {
			version := device.AppVersion
			if version == "" {
				version = sessiondomain.DefaultDesktopAppVersion
			}
			_, err := s.gate.Check(ctx, version, string(sessiondomain.VariantDesktop), user.Username, ip)
			st.mark("version_gate")
			if err != nil {
				return nil, s.fail(ctx, span, method, username, ip, user, st, err)
			}
		}
	}

	fp := device.fingerprint(user.Username)
	sess, err := s.sessions.Create(ctx, sessionsvc.CreateParams{
		Variant:           variant,
		UserID:            user.ID,
		IPAddress:         ip,
		AuthMethod:        method,
		DeviceFingerprint: fp,
		AppVersion:        device.AppVersion,
		ComputerName:      device.ComputerName,
		OSInfo:            device.OS,
		Browser:           device.Browser,
		UserAgent:         device.UserAgent,
	})
	st.mark("session_create")
	if err != nil {
		return nil, s.fail(ctx, span, method, username, ip, user, st, fmt.Errorf("create session: %w", err))
	}

	raw, _, err := s.tokens.Issue(ctx, user, sess.ID, device.snapshot())
	st.mark("token_issue")
	if err != nil {
		return nil, s.fail(ctx, span, method, username, ip, user, st, fmt.Errorf("issue token: %w", err))
	}

	if err := s.sessions.Stamp(ctx, sess, fp, s.now().UTC()); err != nil {
		return nil, s.fail(ctx, span, method, username, ip, user, st, fmt.Errorf("stamp session: %w", err))
	}
	st.mark("session_stamp")

	redirect := RedirectSelfService
	if user.IsTechnician {
		redirect = RedirectTechnician
	}

	total := st.total()
	loginsTotal.WithLabelValues(string(method), "success").Inc()
	loginDuration.WithLabelValues(string(method)).Observe(total.Seconds())
	span.SetAttributes(attribute.String("auth.session_id", sess.ID))
	s.log.Info("login succeeded", append(st.fields(),
		zap.String("method", string(method)),
		zap.String("username", user.Username),
		zap.String("session_id", sess.ID),
		zap.String("variant", string(variant)),
		zap.String("ip", ip),
	)...)
	s.record(ctx, audit.Event{
		Action:     auditdomain.ActionLoginSuccess,
		Resource:   auditdomain.ResourceAuth,
		UserID:     user.ID,
		Username:   user.Username,
		SessionID:  sess.ID,
		AuthMethod: string(method),
		IP:         ip,
		Metadata: map[string]any{
			"variant":     string(variant),
			"app_version": sess.AppVersion,
		},
	})

	return &LoginResult{
		AccessToken: raw,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TTL() / time.Second),
		SessionID:   sess.ID,
		RedirectTo:  redirect,
		User:        SummaryOf(user),
	}, nil
}

// fail classifies err, records it and returns the classified error.
func (s *AuthService) fail(ctx context.Context, span trace.Span, method sessiondomain.AuthMethod, username, ip string, user *userdomain.User, st *steps, err error) error {
	ae := autherr.As(err)
	loginsTotal.WithLabelValues(string(method), string(ae.Kind)).Inc()
	loginDuration.WithLabelValues(string(method)).Observe(st.total().Seconds())
	span.RecordError(err)
	span.SetStatus(codes.Error, string(ae.Kind))

	fields := append(st.fields(),
		zap.String("method", string(method)),
		zap.String("username", username),
		zap.String("ip", ip),
		zap.String("kind", string(ae.Kind)),
		zap.Error(err),
	)
	switch ae.Kind {
	case autherr.KindInternal, autherr.KindAuthBackendUnavailable:
		s.log.Error("login failed", fields...)
	default:
		s.log.Info("login rejected", fields...)
	}

	ev := audit.Event{
		Action:     audit.FailureAction(err),
		Resource:   auditdomain.ResourceAuth,
		Username:   userdomain.NormalizeUsername(username),
		AuthMethod: string(method),
		IP:         ip,
		Metadata:   audit.FailureMetadata(err),
	}
	if user != nil {
		ev.UserID = user.ID
		ev.Username = user.Username
	}
	s.record(ctx, ev)
	return ae
}

func (s *AuthService) record(ctx context.Context, ev audit.Event) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, ev)
	}
}

func checkAccount(u *userdomain.User) error {
	if !u.IsActive {
		return autherr.AccountInactive()
	}
	if u.IsBlocked {
		return autherr.AccountBlocked(u.BlockMessage)
	}
	return nil
}

// Logout terminates the caller's session, or every session of the user when revokeAll is set.
// Termination revokes the affected tokens in the same transaction.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string, revokeAll bool, ip string) (*LogoutResult, error) {
	if revokeAll {
		n, err := s.sessions.TerminateAllForUser(ctx, userID)
		if err != nil {
			return nil, autherr.Internal(fmt.Errorf("terminate all sessions: %w", err))
		}
		logoutsTotal.WithLabelValues("all").Inc()
		s.record(ctx, audit.Event{
			Action:   auditdomain.ActionLogoutAll,
			Resource: auditdomain.ResourceSession,
			UserID:   userID,
			IP:       ip,
			Metadata: map[string]any{"sessions": n},
		})
		return &LogoutResult{Message: MsgAllSessionsRevoked}, nil
	}
	if err := s.sessions.Terminate(ctx, sessionID); err != nil {
		return nil, autherr.Internal(fmt.Errorf("terminate session: %w", err))
	}
	logoutsTotal.WithLabelValues("session").Inc()
	s.record(ctx, audit.Event{
		Action:    auditdomain.ActionLogout,
		Resource:  auditdomain.ResourceSession,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ip,
	})
	id := sessionID
	return &LogoutResult{Message: MsgSessionTerminated, SessionID: &id}, nil
}

// Validate checks a presented bearer token. Storage failures are Internal; every other failure is Valid=false.
func (s *AuthService) Validate(ctx context.Context, raw string) (*tokensvc.Validation, error) {
	v, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return nil, autherr.Internal(fmt.Errorf("validate token: %w", err))
	}
	return v, nil
}

// ActiveSessions lists the user's active sessions, marking currentID.
func (s *AuthService) ActiveSessions(ctx context.Context, userID, currentID string) ([]sessiondomain.SessionInfo, error) {
	list, err := s.sessions.ActiveSessions(ctx, userID, currentID)
	if err != nil {
		return nil, autherr.Internal(fmt.Errorf("list sessions: %w", err))
	}
	return list, nil
}

// TerminateSession terminates one of the user's own sessions. Another user's session is reported as not found.
func (s *AuthService) TerminateSession(ctx context.Context, userID, sessionID, ip string) error {
	if err := s.sessions.TerminateOwned(ctx, userID, sessionID); err != nil {
		if errors.Is(err, sessionsvc.ErrSessionNotFound) {
			return autherr.NotFound("Session not found")
		}
		return autherr.Internal(fmt.Errorf("terminate session: %w", err))
	}
	s.record(ctx, audit.Event{
		Action:    auditdomain.ActionSessionTerminated,
		Resource:  auditdomain.ResourceSession,
		UserID:    userID,
		SessionID: sessionID,
		IP:        ip,
	})
	return nil
}

// Heartbeat keeps a session alive. It never revives a terminated session.
func (s *AuthService) Heartbeat(ctx context.Context, sessionID, ip string) error {
	if err := s.sessions.Heartbeat(ctx, sessionID, ip); err != nil {
		if errors.Is(err, sessionsvc.ErrSessionInactive) {
			return autherr.NotFound(tokensvc.ReasonSessionInactive)
		}
		return autherr.Internal(fmt.Errorf("heartbeat: %w", err))
	}
	return nil
}

// steps records per-step login timings for the log line.
type steps struct {
	now   func() time.Time
	start time.Time
	last  time.Time
	marks []zap.Field
}

func newSteps(now func() time.Time) *steps {
	t := now()
	return &steps{now: now, start: t, last: t}
}

func (s *steps) mark(name string) {
	t := s.now()
	s.marks = append(s.marks, zap.Duration(name, t.Sub(s.last)))
	s.last = t
}

func (s *steps) total() time.Duration { return s.now().Sub(s.start) }

func (s *steps) fields() []zap.Field {
	out := make([]zap.Field, 0, len(s.marks)+1)
	out = append(out, s.marks...)
	return append(out, zap.Duration("total", s.total()))
}
