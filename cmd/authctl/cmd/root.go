package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/config"
	"helpdesk-auth/backend/internal/db"
	"helpdesk-auth/backend/internal/logging"
)

var (
	cfg     *config.Config
	log     *zap.Logger
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Operator CLI for the helpdesk auth service",
	Long: `authctl manages the helpdesk auth service database: the admin account, the client
version registry, version policy settings, token retention and user sessions.
Configuration is read from the environment and .env, like the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if log, err = logging.New(cfg.Env); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Deadline for the whole command")
	rootCmd.AddCommand(seedAdminCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withPool runs fn with a connected pool under the command deadline.
func withPool(cmd *cobra.Command, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}
