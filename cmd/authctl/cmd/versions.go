package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/clientversion/domain"
	clientversionrepo "helpdesk-auth/backend/internal/clientversion/repository"
)

var (
	versionsFile     string
	versionsPlatform string
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Manage the client version registry",
}

var versionsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert registry entries from a TOML file",
	Long: `Reads [[version]] tables from a TOML file and upserts them keyed by (platform, version).

  [[version]]
  version = "2.0.0"
  order = 20
  latest = true
  enforced = false
  installer_url = "https://downloads.example.com/agent-2.0.0.msi"
  silent_install_args = "/quiet"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionsFile == "" {
			return errors.New("--file is required")
		}
		data, err := os.ReadFile(versionsFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", versionsFile, err)
		}
		entries, err := parseVersionsFile(data, time.Now().UTC())
		if err != nil {
			return err
		}
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			repo := clientversionrepo.NewPostgresRepository(pool)
			for i := range entries {
				if err := repo.Upsert(ctx, &entries[i]); err != nil {
					return err
				}
				log.Info("client version upserted",
					zap.String("platform", entries[i].Platform),
					zap.String("version", entries[i].VersionString),
					zap.Int("order", entries[i].OrderIndex))
			}
			fmt.Printf("Imported %d versions\n", len(entries))
			return nil
		})
	},
}

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
			list, err := clientversionrepo.NewPostgresRepository(pool).List(ctx, versionsPlatform)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tORDER\tACTIVE\tLATEST\tENFORCED\tINSTALLER")
			for _, v := range list {
				fmt.Fprintf(w, "%s\t%d\t%t\t%t\t%t\t%s\n", v.VersionString, v.OrderIndex, v.IsActive, v.IsLatest, v.IsEnforced, v.InstallerURL)
			}
			return w.Flush()
		})
	},
}

func init() {
	versionsImportCmd.Flags().StringVarP(&versionsFile, "file", "f", "", "Path to the TOML registry file")
	versionsListCmd.Flags().StringVar(&versionsPlatform, "platform", domain.PlatformDesktop, "Platform to list")
	versionsCmd.AddCommand(versionsImportCmd)
	versionsCmd.AddCommand(versionsListCmd)
}

type versionsFileEntry struct {
	Version           string `toml:"version"`
	Platform          string `toml:"platform"`
	Order             *int   `toml:"order"`
	Active            *bool  `toml:"active"`
	Latest            bool   `toml:"latest"`
	Enforced          bool   `toml:"enforced"`
	InstallerURL      string `toml:"installer_url"`
	SilentInstallArgs string `toml:"silent_install_args"`
	ReleaseNotes      string `toml:"release_notes"`
}

type versionsFileDoc struct {
	Versions []versionsFileEntry `toml:"version"`
}

// parseVersionsFile decodes and validates a registry file. Platform defaults to desktop and active to true;
// order is required, unique per platform, and at most one entry per platform may be latest.
func parseVersionsFile(data []byte, now time.Time) ([]domain.ClientVersion, error) {
	var doc versionsFileDoc
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("parse versions file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse versions file: unknown key %s", undecoded[0])
	}
	if len(doc.Versions) == 0 {
		return nil, errors.New("versions file has no [[version]] entries")
	}

	type key struct {
		platform string
		order    int
	}
	orders := map[key]string{}
	latest := map[string]string{}
	seen := map[string]bool{}
	out := make([]domain.ClientVersion, 0, len(doc.Versions))
	for i, e := range doc.Versions {
		e.Version = strings.TrimSpace(e.Version)
		if e.Version == "" {
			return nil, fmt.Errorf("entry %d: version is required", i+1)
		}
		if e.Order == nil {
			return nil, fmt.Errorf("version %s: order is required", e.Version)
		}
		platform := strings.TrimSpace(e.Platform)
		if platform == "" {
			platform = domain.PlatformDesktop
		}
		if seen[platform+"/"+e.Version] {
			return nil, fmt.Errorf("version %s listed twice for %s", e.Version, platform)
		}
		seen[platform+"/"+e.Version] = true
		k := key{platform, *e.Order}
		if other, ok := orders[k]; ok {
			return nil, fmt.Errorf("versions %s and %s share order %d", other, e.Version, *e.Order)
		}
		orders[k] = e.Version
		if e.Latest {
			if other, ok := latest[platform]; ok {
				return nil, fmt.Errorf("versions %s and %s are both latest for %s", other, e.Version, platform)
			}
			latest[platform] = e.Version
		}
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		out = append(out, domain.ClientVersion{
			ID:                uuid.NewString(),
			VersionString:     e.Version,
			Platform:          platform,
			OrderIndex:        *e.Order,
			IsActive:          active,
			IsLatest:          e.Latest,
			IsEnforced:        e.Enforced,
			InstallerURL:      e.InstallerURL,
			SilentInstallArgs: e.SilentInstallArgs,
			ReleaseNotes:      e.ReleaseNotes,
			CreatedAt:         now,
		})
	}
	return out, nil
}
