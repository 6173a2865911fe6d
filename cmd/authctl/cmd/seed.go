package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/security"
	userdomain "helpdesk-auth/backend/internal/user/domain"
	userrepo "helpdesk-auth/backend/internal/user/repository"
)

var (
	seedUsername string
	seedPassword string
	seedEmail    string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create or reset the local super-admin account",
	Long: `Creates a local (non-directory) super admin with a bcrypt password for /admin-login.
If the username exists its password is replaced and it is made an active super admin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedUsername == "" || seedPassword == "" {
			return errors.New("--username and --password are required")
		}
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			u, created, err := seedAdmin(ctx, userrepo.NewPostgresRepository(pool), security.NewHasher(cfg.BcryptCost),
				seedUsername, seedPassword, seedEmail, time.Now().UTC())
			if err != nil {
				return err
			}
			log.Info("admin seeded", zap.String("user_id", u.ID), zap.String("username", u.Username), zap.Bool("created", created))
			if created {
				fmt.Printf("Created admin %s (%s)\n", u.Username, u.ID)
			} else {
				fmt.Printf("Reset admin %s (%s)\n", u.Username, u.ID)
			}
			return nil
		})
	},
}

func init() {
	seedAdminCmd.Flags().StringVar(&seedUsername, "username", "", "Admin username")
	seedAdminCmd.Flags().StringVar(&seedPassword, "password", "", "Admin password")
	seedAdminCmd.Flags().StringVar(&seedEmail, "email", "", "Admin email (default <username>@local)")
}

// seedAdmin creates the admin or resets an existing user into one. It reports whether a row was created.
func seedAdmin(ctx context.Context, users userrepo.Repository, hasher *security.Hasher, username, password, email string, now time.Time) (*userdomain.User, bool, error) {
	username = userdomain.NormalizeUsername(username)
	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, false, err
	}
	existing, err := users.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", username, err)
	}
	if existing != nil {
		if err := users.SetPassword(ctx, existing.ID, hash, now); err != nil {
			return nil, false, fmt.Errorf("set password: %w", err)
		}
		if err := users.SetFlags(ctx, existing.ID, userrepo.Flags{
			IsActive:     true,
			IsTechnician: existing.IsTechnician,
			IsSuperAdmin: true,
		}); err != nil {
			return nil, false, fmt.Errorf("set flags: %w", err)
		}
		existing.PasswordHash = hash
		existing.IsActive, existing.IsBlocked, existing.IsSuperAdmin = true, false, true
		return existing, false, nil
	}

	if email == "" {
		email = username + "@local"
	}
	u := &userdomain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		FullName:     username,
		IsActive:     true,
		IsSuperAdmin: true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, false, err
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	return u, true, nil
}
