package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"helpdesk-auth/backend/internal/clientversion/domain"
	"helpdesk-auth/backend/internal/db"
)

const versionColumns = `id, version_string, platform, order_index, is_active, is_latest, is_enforced,
	installer_url, silent_install_args, release_notes, created_at`

type PostgresRepository struct {
	db db.DBTX
	tx *db.TxRunner
}

// NewPostgresRepository returns a registry repository backed by conn.
func NewPostgresRepository(conn db.Conn) *PostgresRepository {
	return &PostgresRepository{db: conn, tx: db.NewTxRunner(conn)}
}

func (r *PostgresRepository) ListActive(ctx context.Context, platform string) ([]domain.ClientVersion, error) {
	return r.list(ctx, `SELECT `+versionColumns+` FROM client_versions
		WHERE platform = $1 AND is_active = TRUE ORDER BY order_index DESC`, platform)
}

func (r *PostgresRepository) List(ctx context.Context, platform string) ([]domain.ClientVersion, error) {
	return r.list(ctx, `SELECT `+versionColumns+` FROM client_versions
		WHERE platform = $1 ORDER BY order_index DESC`, platform)
}

// Upsert writes v keyed by (platform, version_string). The row id is kept on update.
func (r *PostgresRepository) Upsert(ctx context.Context, v *domain.ClientVersion) error {
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if v.IsLatest {
			if _, err := tx.Exec(ctx, `
				UPDATE client_versions SET is_latest = FALSE, updated_at = now()
				WHERE platform = $1 AND is_latest AND version_string <> $2`, v.Platform, v.VersionString); err != nil {
				return fmt.Errorf("clear latest: %w", err)
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO client_versions (`+versionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (platform, version_string) DO UPDATE SET
				order_index = EXCLUDED.order_index,
				is_active = EXCLUDED.is_active,
				is_latest = EXCLUDED.is_latest,
				is_enforced = EXCLUDED.is_enforced,
				installer_url = EXCLUDED.installer_url,
				silent_install_args = EXCLUDED.silent_install_args,
				release_notes = EXCLUDED.release_notes,
				updated_at = now()`,
			v.ID, v.VersionString, v.Platform, v.OrderIndex, v.IsActive, v.IsLatest, v.IsEnforced,
			nullString(v.InstallerURL), nullString(v.SilentInstallArgs), nullString(v.ReleaseNotes), v.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert client version %s: %w", v.VersionString, err)
		}
		return nil
	})
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]domain.ClientVersion, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list client versions: %w", err)
	}
	defer rows.Close()
	var out []domain.ClientVersion
	for rows.Next() {
		var (
			v                  domain.ClientVersion
			url, silent, notes *string
		)
		if err := rows.Scan(&v.ID, &v.VersionString, &v.Platform, &v.OrderIndex, &v.IsActive, &v.IsLatest,
			&v.IsEnforced, &url, &silent, &notes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client version: %w", err)
		}
		v.InstallerURL, v.SilentInstallArgs, v.ReleaseNotes = deref(url), deref(silent), deref(notes)
		out = append(out, v)
	}
	return out, rows.Err()
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
