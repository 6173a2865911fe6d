package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/db/migrate"
	settingsdomain "helpdesk-auth/backend/internal/platformsettings/domain"
	settingsrepo "helpdesk-auth/backend/internal/platformsettings/repository"
	"helpdesk-auth/backend/internal/reaper"
	sessionrepo "helpdesk-auth/backend/internal/session/repository"
	sessionsvc "helpdesk-auth/backend/internal/session/service"
	tokenrepo "helpdesk-auth/backend/internal/token/repository"
	userrepo "helpdesk-auth/backend/internal/user/repository"
)

var (
	cleanupRetentionDays int
	revokeUsername       string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired and revoked tokens and terminated sessions past retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cfg.TokenRetentionDays
		if cmd.Flags().Changed("retention-days") {
			days = cleanupRetentionDays
		}
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			r := reaper.New(tokenrepo.NewPostgresRepository(pool), sessionrepo.NewPostgresRepository(pool), nil, log)
			sum, err := r.Cleanup(ctx, days)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage user sessions",
}

var sessionsRevokeAllCmd = &cobra.Command{
	Use:   "revoke-all",
	Short: "Terminate every active session of a user and revoke their tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		if revokeUsername == "" {
			return errors.New("--user is required")
		}
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			u, err := userrepo.NewPostgresRepository(pool).GetByUsername(ctx, revokeUsername)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("user %s not found", revokeUsername)
			}
			n, err := sessionsvc.NewManager(sessionrepo.NewPostgresRepository(pool), log).TerminateAllForUser(ctx, u.ID)
			if err != nil {
				return err
			}
			log.Info("sessions revoked", zap.String("user_id", u.ID), zap.Int("sessions", n))
			fmt.Printf("Terminated %d sessions of %s\n", n, u.Username)
			return nil
		})
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change runtime version policy settings",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			list, err := settingsrepo.NewPostgresRepository(pool).List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE\tUPDATED")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Key, s.Value, s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY true|false",
	Short: "Set a version policy switch; applies to the next login",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]
		if !knownSetting(key) {
			return fmt.Errorf("unknown setting %q", key)
		}
		v, err := settingsrepo.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: value must be true or false", key)
		}
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			if err := settingsrepo.NewPostgresRepository(pool).Set(ctx, key, strconv.FormatBool(v)); err != nil {
				return err
			}
			log.Info("setting changed", zap.String("key", key), zap.Bool("value", v))
			fmt.Printf("%s = %t\n", key, v)
			return nil
		})
	},
}

func knownSetting(key string) bool {
	switch key {
	case settingsdomain.KeyVersionEnforceEnabled,
		settingsdomain.KeyVersionRejectOutdatedEnforced,
		settingsdomain.KeyVersionRejectUnknown:
		return true
	}
	return false
}

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		if err := migrate.Run(cfg.DatabaseURL, args[0]); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("No change")
				return nil
			}
			return err
		}
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("Migrated %s to version %d (dirty=%t)\n", args[0], v, dirty)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupRetentionDays, "retention-days", reaper.DefaultRetentionDays, "Days to keep expired/revoked rows (default from TOKEN_RETENTION_DAYS)")
	sessionsRevokeAllCmd.Flags().StringVar(&revokeUsername, "user", "", "Username whose sessions to terminate")
	sessionsCmd.AddCommand(sessionsRevokeAllCmd)
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}
