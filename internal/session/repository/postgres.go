package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"helpdesk-auth/backend/internal/db"
	"helpdesk-auth/backend/internal/session/domain"
	tokenrepo "helpdesk-auth/backend/internal/token/repository"
)

const sessionColumns = `id, user_id, variant, ip_address, auth_method, device_fingerprint, authenticated_at,
	last_auth_refresh, is_active, last_heartbeat, app_version, computer_name, os_info, browser, user_agent,
	terminated_at, created_at, updated_at`

// PostgresRepository implements Repository on the sessions table. Token revocation on termination
// goes through the token repository inside the same transaction.
type PostgresRepository struct {
	db db.DBTX
	tx *db.TxRunner
}

// NewPostgresRepository returns a session repository backed by conn (a pool, or a tx for nesting).
func NewPostgresRepository(conn db.Conn) *PostgresRepository {
	return &PostgresRepository{db: conn, tx: db.NewTxRunner(conn)}
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		s.ID, s.UserID, string(s.Variant), s.IPAddress, string(s.AuthMethod), nullString(s.DeviceFingerprint),
		s.AuthenticatedAt, s.LastAuthRefresh, s.IsActive, s.LastHeartbeat, nullString(s.AppVersion),
		nullString(s.ComputerName), nullString(s.OSInfo), nullString(s.Browser), nullString(s.UserAgent),
		s.TerminatedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Stamp records a completed authentication on the session.
func (r *PostgresRepository) Stamp(ctx context.Context, id, fingerprint string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET authenticated_at = $2, last_auth_refresh = $2, device_fingerprint = $3, updated_at = $2
		WHERE id = $1`, id, at, nullString(fingerprint))
	if err != nil {
		return fmt.Errorf("stamp session: %w", err)
	}
	return nil
}

// Terminate deactivates the session and revokes its tokens in one transaction.
func (r *PostgresRepository) Terminate(ctx context.Context, id string, at time.Time) error {
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE sessions SET is_active = FALSE, terminated_at = COALESCE(terminated_at, $2), updated_at = $2
			WHERE id = $1`, id, at); err != nil {
			return fmt.Errorf("terminate session: %w", err)
		}
		_, err := tokenrepo.NewPostgresRepository(tx).RevokeBySession(ctx, id, at)
		return err
	})
}

// TerminateAllForUser deactivates all of the user's sessions, of both variants, and revokes every token in one transaction.
func (r *PostgresRepository) TerminateAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	var n int64
	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE sessions SET is_active = FALSE, terminated_at = $2, updated_at = $2
			WHERE user_id = $1 AND is_active = TRUE`, userID, at)
		if err != nil {
			return fmt.Errorf("terminate user sessions: %w", err)
		}
		n = tag.RowsAffected()
		_, err = tokenrepo.NewPostgresRepository(tx).RevokeByUser(ctx, userID, at)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListActiveByUser returns the user's active sessions, newest first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND is_active = TRUE ORDER BY created_at DESC`, userID)
}

// Heartbeat sets last_heartbeat and, when ipAddress is non-empty, ip_address. Inactive sessions are left untouched.
func (r *PostgresRepository) Heartbeat(ctx context.Context, id, ipAddress string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET last_heartbeat = $2, ip_address = COALESCE($3, ip_address), updated_at = $2
		WHERE id = $1 AND is_active = TRUE`, id, at, nullString(ipAddress))
	if err != nil {
		return false, fmt.Errorf("session heartbeat: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStaleDesktop returns active desktop sessions whose latest activity is older than before.
func (r *PostgresRepository) ListStaleDesktop(ctx context.Context, before time.Time) ([]*domain.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE variant = 'desktop' AND is_active = TRUE
		  AND COALESCE(last_heartbeat, authenticated_at, created_at) < $1`, before)
}

// PurgeTerminated deletes inactive sessions terminated before cutoff. Their tokens go with them (on delete cascade).
func (r *PostgresRepository) PurgeTerminated(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE is_active = FALSE AND terminated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s                                             domain.Session
		variant, method                               string
		fp, appVersion, computer, osInfo, browser, ua *string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &variant, &s.IPAddress, &method, &fp, &s.AuthenticatedAt,
		&s.LastAuthRefresh, &s.IsActive, &s.LastHeartbeat, &appVersion, &computer, &osInfo, &browser, &ua,
		&s.TerminatedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.Variant = domain.Variant(variant)
	s.AuthMethod = domain.AuthMethod(method)
	s.DeviceFingerprint = deref(fp)
	s.AppVersion = deref(appVersion)
	s.ComputerName = deref(computer)
	s.OSInfo = deref(osInfo)
	s.Browser = deref(browser)
	s.UserAgent = deref(ua)
	return &s, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
