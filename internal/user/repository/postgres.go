package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"helpdesk-auth/backend/internal/db"
	"helpdesk-auth/backend/internal/user/domain"
)

const userColumns = `id, username, email, full_name, phone_number, title, office, direct_manager_name,
	manager_id, is_active, is_blocked, block_message, is_technician, is_super_admin, is_domain,
	password_hash, last_seen, created_at, updated_at`

// PostgresRepository implements Repository on the users table. Usernames are unique case-insensitively.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository that uses the given pool or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByUsername returns the user whose username matches case-insensitively, or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, domain.NormalizeUsername(username))
	return scanUser(row)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		u.ID, u.Username, u.Email, nullString(u.FullName), nullString(u.PhoneNumber), nullString(u.Title),
		nullString(u.Office), nullString(u.DirectManagerName), u.ManagerID, u.IsActive, u.IsBlocked,
		nullString(u.BlockMessage), u.IsTechnician, u.IsSuperAdmin, u.IsDomain, nullString(u.PasswordHash),
		u.LastSeen, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, u.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateProfile writes the directory-sourced profile fields. Username and id are never changed.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET
			email = $2, full_name = $3, phone_number = $4, title = $5, office = $6,
			direct_manager_name = $7, manager_id = $8, is_domain = $9, last_seen = $10, updated_at = $11
		WHERE id = $1`,
		u.ID, u.Email, nullString(u.FullName), nullString(u.PhoneNumber), nullString(u.Title),
		nullString(u.Office), nullString(u.DirectManagerName), u.ManagerID, u.IsDomain, u.LastSeen, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

// SetPassword stores a bcrypt hash for local authentication.
func (r *PostgresRepository) SetPassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, at)
	if err != nil {
		return fmt.Errorf("set user password: %w", err)
	}
	return nil
}

// SetFlags updates account-state and role flags.
func (r *PostgresRepository) SetFlags(ctx context.Context, id string, f Flags) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET is_active = $2, is_blocked = $3, block_message = $4, is_technician = $5,
			is_super_admin = $6, updated_at = now()
		WHERE id = $1`,
		id, f.IsActive, f.IsBlocked, nullString(f.BlockMessage), f.IsTechnician, f.IsSuperAdmin,
	)
	if err != nil {
		return fmt.Errorf("set user flags: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u                                                    domain.User
		fullName, phone, title, office, mgrName, block, hash *string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &fullName, &phone, &title, &office, &mgrName,
		&u.ManagerID, &u.IsActive, &u.IsBlocked, &block, &u.IsTechnician, &u.IsSuperAdmin, &u.IsDomain,
		&hash, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.FullName = deref(fullName)
	u.PhoneNumber = deref(phone)
	u.Title = deref(title)
	u.Office = deref(office)
	u.DirectManagerName = deref(mgrName)
	u.BlockMessage = deref(block)
	u.PasswordHash = deref(hash)
	return &u, nil
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
