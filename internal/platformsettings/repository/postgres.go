package repository

import (
	"context"
	"strconv"
	"strings"

	"helpdesk-auth/backend/internal/db"
	"helpdesk-auth/backend/internal/platformsettings/domain"
	"helpdesk-auth/backend/internal/versionpolicy"
)

type PostgresRepository struct {
	conn db.DBTX
}

// NewPostgresRepository returns a platform settings repository that uses the given connection.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	var s domain.Setting
	err := r.conn.QueryRow(ctx,
		`SELECT key, value_json, updated_at FROM platform_settings WHERE key = $1`, key,
	).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO platform_settings (key, value_json, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value_json = EXCLUDED.value_json, updated_at = now()`,
		key, value)
	return err
}

func (r *PostgresRepository) List(ctx context.Context) ([]domain.Setting, error) {
	rows, err := r.conn.Query(ctx, `SELECT key, value_json, updated_at FROM platform_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// VersionPolicySettings reads the three version policy keys in one query.
func (r *PostgresRepository) VersionPolicySettings(ctx context.Context, defaults versionpolicy.PolicySettings) (versionpolicy.PolicySettings, error) {
	out := defaults
	rows, err := r.conn.Query(ctx,
		`SELECT key, value_json FROM platform_settings WHERE key = ANY($1)`,
		[]string{domain.KeyVersionEnforceEnabled, domain.KeyVersionRejectOutdatedEnforced, domain.KeyVersionRejectUnknown})
	if err != nil {
		return defaults, err
	}
	defer rows.Close()
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return defaults, err
		}
		v, err := ParseBool(raw)
		if err != nil {
			continue
		}
		switch key {
		case domain.KeyVersionEnforceEnabled:
			out.EnforceEnabled = v
		case domain.KeyVersionRejectOutdatedEnforced:
			out.RejectOutdatedEnforced = v
		case domain.KeyVersionRejectUnknown:
			out.RejectUnknown = v
		}
	}
	if err := rows.Err(); err != nil {
		return defaults, err
	}
	return out, nil
}

// ParseBool accepts the boolean spellings stored by operators and authctl.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`)) {
	case "true", "1":
		return true, nil
	case "false", "0", "":
		return false, nil
	default:
		return false, strconv.ErrSyntax
	}
}
