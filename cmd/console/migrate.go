package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/emporia/console/migrations"
)

func newMigrateCommand() *cobra.Command {
	var databaseURL string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	migrateCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL. Defaults to PG_DSN.")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Apply pending migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, hasSteps, err := parseStepsArg(args)
			if err != nil {
				return err
			}
			runner, err := newMigrationRunner(databaseURL)
			if err != nil {
				return err
			}
			defer closeRunner(cmd, runner)

			if hasSteps {
				err = runner.Steps(steps)
			} else {
				err = runner.Up()
			}
			if isNoChange(err) {
				cmd.Println("No schema changes to apply.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			cmd.Println("Migrations applied.")
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back migrations by step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _, err := parseStepsArg(args)
			if err != nil {
				return err
			}
			runner, err := newMigrationRunner(databaseURL)
			if err != nil {
				return err
			}
			defer closeRunner(cmd, runner)

			err = runner.Steps(-steps)
			if isNoChange(err) {
				cmd.Println("No schema changes to roll back.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("rollback migrations: %w", err)
			}
			cmd.Printf("Rolled back %d migration step(s).\n", steps)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force-set the migration version (-1 for none)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersionArg(args[0])
			if err != nil {
				return err
			}
			runner, err := newMigrationRunner(databaseURL)
			if err != nil {
				return err
			}
			defer closeRunner(cmd, runner)

			if err := runner.Force(version); err != nil {
				return fmt.Errorf("force migration version: %w", err)
			}
			cmd.Printf("Forced migration version to %d.\n", version)
			return nil
		},
	})

	return migrateCmd
}

func parseStepsArg(args []string) (int, bool, error) {
	if len(args) == 0 {
		return 0, false, nil
	}
	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || steps <= 0 {
		return 0, false, fmt.Errorf("invalid migration steps %q: expected a positive integer", args[0])
	}
	return steps, true, nil
}

func parseForceVersionArg(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || version < -1 {
		return 0, fmt.Errorf("invalid force version %q: expected an integer >= -1", arg)
	}
	return version, nil
}

// driverURL points a postgres:// DSN at the pgx v5 migrate driver.
func driverURL(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", fmt.Errorf("unsupported database url %q: expected postgres://", dsn)
}

func newMigrationRunner(databaseURL string) (*migrate.Migrate, error) {
	if databaseURL == "" {
		databaseURL = os.Getenv("PG_DSN")
	}
	if databaseURL == "" {
		return nil, errors.New("missing database URL: set --database-url or PG_DSN")
	}
	target, err := driverURL(databaseURL)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	runner, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		return nil, fmt.Errorf("create migrate runner: %w", err)
	}
	return runner, nil
}

func closeRunner(cmd *cobra.Command, runner *migrate.Migrate) {
	sourceErr, databaseErr := runner.Close()
	if err := errors.Join(sourceErr, databaseErr); err != nil {
		cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", err)
	}
}

// isNoChange also accepts the bare os.ErrNotExist golang-migrate returns when
// a step count runs past the first or last migration.
func isNoChange(err error) bool {
	return errors.Is(err, migrate.ErrNoChange) || errors.Is(err, os.ErrNotExist)
}
