// Command migrate applies the embedded approvals schema.
package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-plt-approvals/internal/database"
)

var rootCmd = &cobra.Command{
	Use:          "approvals-migrate",
	Short:        "Manage the approvals database schema",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional
		_ = godotenv.Load()
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := migrator(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		fmt.Println("Migrations applied successfully")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (all when steps is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := migrator(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			err = m.Steps(-n)
		} else {
			err = m.Down()
		}
		if err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("roll back migrations: %w", err)
		}
		fmt.Println("Migrations rolled back successfully")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := migrator(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		v, dirty, err := m.Version()
		if stderrors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		fmt.Printf("Version %d (dirty=%t)\n", v, dirty)
		return nil
	},
}

func migrator(cmd *cobra.Command) (*migrate.Migrate, error) {
	url, _ := cmd.Flags().GetString("db")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return nil, fmt.Errorf("--db flag or DATABASE_URL is required")
	}
	return database.NewMigrator(url)
}

func main() {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (defaults to DATABASE_URL)")
	rootCmd.AddCommand(upCmd, downCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
