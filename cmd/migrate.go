package cmd

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/ytscribe/internal/config"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
	Long:  `Apply or roll back the PostgreSQL migrations. Mongo and SQLite stores create their schema on startup.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrate(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		printVersion(m)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Long:  `Roll back the given number of migrations (default 1). Use --all to drop every table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		all, _ := cmd.Flags().GetBool("all")

		m, err := newMigrate(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		if all {
			err = m.Down()
		} else {
			err = m.Steps(-steps)
		}
		if err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		printVersion(m)
		return nil
	},
}

func newMigrate(cmd *cobra.Command) (*migrate.Migrate, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is not set")
	}

	path, _ := cmd.Flags().GetString("path")
	m, err := migrate.New("file://"+path, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func printVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	switch {
	case err == migrate.ErrNilVersion:
		fmt.Println("Schema version: none")
	case err != nil:
		fmt.Printf("Schema version: unknown (%v)\n", err)
	default:
		fmt.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
	}
}

func init() {
	migrateCmd.PersistentFlags().String("path", "migrations", "Directory containing migration files")
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	migrateDownCmd.Flags().Bool("all", false, "Roll back every migration")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}
