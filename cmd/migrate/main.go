package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

var (
	sourceURL string
	rootCmd   = &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL schema migrations to the MySQL database",
		PersistentPreRun: func(*cobra.Command, []string) {
			env.SetupEnvFile()
		},
	}
	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE:  withMigrate(runUp),
	}
	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE:  withMigrate(runDown),
	}
	gotoCmd = &cobra.Command{
		Use:   "goto [version]",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE:  withMigrate(runGoto),
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		RunE:  withMigrate(runStatus),
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&sourceURL, "source", "file://migrations", "migration source URL")
	rootCmd.AddCommand(upCmd, downCmd, gotoCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func databaseURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "saaskit"),
		env.GetEnv("DB_PASSWORD", "saaskit"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "saaskit_db"),
	)
}

func withMigrate(run func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		log.Infof("[Migrate] connecting to %s@%s:%s/%s",
			env.GetEnv("DB_USER", "saaskit"),
			env.GetEnv("DB_HOST", "db"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", "saaskit_db"),
		)
		m, err := migrate.New(sourceURL, databaseURL())
		if err != nil {
			return fmt.Errorf("init migrate: %w", err)
		}
		defer func() {
			if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
				log.Warnf("[Migrate] close: %v, %v", sourceErr, dbErr)
			}
		}()
		return run(m, args)
	}
}

func runUp(m *migrate.Migrate, _ []string) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("[Migrate] no change: database is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	log.Info("[Migrate] migrations applied")
	return nil
}

func runDown(m *migrate.Migrate, _ []string) error {
	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("roll back: %w", err)
	}
	log.Info("[Migrate] rolled back the last migration")
	return nil
}

func runGoto(m *migrate.Migrate, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	err = m.Migrate(uint(version))
	if errors.Is(err, migrate.ErrNoChange) {
		log.Infof("[Migrate] no change: database is already at version %d", version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate to %d: %w", version, err)
	}
	log.Infof("[Migrate] migrated to version %d", version)
	return nil
}

func runStatus(m *migrate.Migrate, _ []string) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("[Migrate] no migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	log.Infof("[Migrate] current version: %d%s", version, suffix)
	return nil
}
