package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"euicc-profile-service/config"
	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/infra"
	"euicc-profile-service/internal/repository"
	"euicc-profile-service/internal/usecase"
	"euicc-profile-service/migrations"
)

// migrateCmd はデータベースマイグレーションのコマンド。
// 接続先はサーバーと同じDATABASE_DRIVER/DATABASE_URLから取得する。
func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Manage database migrations for the eUICC profile service (SQL embedded per driver)",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

// newMigrationService はDBに接続してMigrationServiceを生成する。
func newMigrationService() (*usecase.MigrationService, error) {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	fsys, err := migrations.ForDriver(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	return usecase.NewMigrationService(repository.NewMigrationRepository(db), db, fsys), nil
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newMigrationService()
			if err != nil {
				return err
			}

			appliedCount, err := svc.ApplyMigrations(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed after %d applied: %w", appliedCount, err)
			}

			out := cmd.OutOrStdout()
			if appliedCount == 0 {
				fmt.Fprintln(out, "No pending migrations.")
			} else {
				fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", appliedCount)
			}
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newMigrationService()
			if err != nil {
				return err
			}

			status, err := svc.GetMigrationStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			return renderValue(cmd, status, func(w io.Writer) error {
				return printMigrations(w, status)
			})
		},
	}
}

func printMigrations(w io.Writer, status []*domain.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	fmt.Fprintln(tw, "-------\t----\t------\t----------")

	for _, m := range status {
		appliedAt := "-"
		if m.AppliedAt != nil {
			appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Version, m.Name, m.Status, appliedAt)
	}
	return tw.Flush()
}
