package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect goose SQL migrations",
		Long: "Migrations run from the set compiled into gigctl unless --dir points at a\n" +
			"directory on disk. A Postgres advisory lock serialises concurrent runs.",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")

	withMigrator := func(fn func(ctx context.Context, m *migrate.Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			source, err := migrate.Source(dir)
			if err != nil {
				return err
			}
			e, err := openEnv(c.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			sqlDB, err := e.db.DB().DB()
			if err != nil {
				return err
			}
			m, err := migrate.New(sqlDB, source, c.OutOrStdout())
			if err != nil {
				return err
			}
			return fn(c.Context(), m, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, m *migrate.Migrator, _ []string) error {
				_, err := m.Up(ctx)
				return err
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, m *migrate.Migrator, _ []string) error {
				return m.Down(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and when they were applied",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, m *migrate.Migrator, _ []string) error {
				return m.Status(ctx)
			}),
		},
		&cobra.Command{
			Use:   "to VERSION",
			Short: "Migrate up or down to VERSION (YYYYMMDDHHMMSS)",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(ctx context.Context, m *migrate.Migrator, args []string) error {
				return m.To(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create an empty SQL migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				target := dir
				if target == "" {
					target = migrate.DefaultDir
				}
				path, err := migrate.CreateSQLMigration(target, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(c.OutOrStdout(), "created", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration names and goose annotations",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				if err := migrate.ValidateDir(dir); err != nil {
					return err
				}
				fmt.Fprintln(c.OutOrStdout(), "migrations ok")
				return nil
			},
		},
	)
	return cmd
}
