package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"helpdesk-auth/backend/internal/db"
	"helpdesk-auth/backend/internal/token/domain"
)

const tokenColumns = `id, user_id, session_id, token_hash, token_type, device_info, expires_at, is_revoked, revoked_at, created_at`

// PostgresRepository implements Repository on the auth_tokens table. It accepts a pgx.Tx so callers
// can revoke tokens inside their own transaction.
type PostgresRepository struct {
	db db.DBTX
	tx *db.TxRunner
}

// NewPostgresRepository returns a token repository backed by conn.
func NewPostgresRepository(conn db.Conn) *PostgresRepository {
	return &PostgresRepository{db: conn, tx: db.NewTxRunner(conn)}
}

// ReplaceForSession revokes the session's live tokens and inserts t atomically.
func (r *PostgresRepository) ReplaceForSession(ctx context.Context, t *domain.AuthToken) error {
	info, err := json.Marshal(orEmpty(t.DeviceInfo))
	if err != nil {
		return fmt.Errorf("marshal device info: %w", err)
	}
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := NewPostgresRepository(tx).RevokeBySession(ctx, t.SessionID, t.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO auth_tokens (`+tokenColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.ID, t.UserID, t.SessionID, t.TokenHash, t.TokenType, info, t.ExpiresAt, t.IsRevoked, t.RevokedAt, t.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		return nil
	})
}

// GetByHash returns the token with the given hash, or nil if not found.
func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.AuthToken, error) {
	var (
		t    domain.AuthToken
		info []byte
	)
	err := r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM auth_tokens WHERE token_hash = $1`, tokenHash).Scan(
		&t.ID, &t.UserID, &t.SessionID, &t.TokenHash, &t.TokenType, &info, &t.ExpiresAt, &t.IsRevoked, &t.RevokedAt, &t.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &t.DeviceInfo); err != nil {
			return nil, fmt.Errorf("unmarshal device info: %w", err)
		}
	}
	return &t, nil
}

// RevokeBySession revokes the session's unrevoked tokens. Already revoked rows are untouched.
func (r *PostgresRepository) RevokeBySession(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE auth_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE session_id = $1 AND is_revoked = FALSE`, sessionID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke session tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeByUser revokes all of the user's unrevoked tokens.
func (r *PostgresRepository) RevokeByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE auth_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND is_revoked = FALSE`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of rows of tokenType, or of every type when tokenType is empty.
func (r *PostgresRepository) Count(ctx context.Context, tokenType string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM auth_tokens WHERE ($1 = '' OR token_type = $1)`, tokenType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes rows of tokenType whose expires_at is before cutoff.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, tokenType string, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_tokens WHERE ($1 = '' OR token_type = $1) AND expires_at < $2`, tokenType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeRevoked deletes revoked rows of tokenType whose revoked_at is before cutoff.
func (r *PostgresRepository) PurgeRevoked(ctx context.Context, tokenType string, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM auth_tokens
		WHERE ($1 = '' OR token_type = $1) AND revoked_at IS NOT NULL AND revoked_at < $2`, tokenType, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
