package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/authman/cmd/authmanctl/ui"
	"github.com/redmonkez12/authman/internal/config"
	"github.com/redmonkez12/authman/internal/database"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, database.Up)
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, database.Down)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	}

	migrateCmd.AddCommand(upCmd, downCmd, statusCmd)
	return migrateCmd
}

func runMigrate(cmd *cobra.Command, dir database.Direction) error {
	ctx := cmd.Context()
	cfg := config.Read()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, dir); err != nil {
		ui.PrintError(err.Error())
		return err
	}

	version, err := database.Version(ctx, db)
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Migrations %s complete, schema version %d", dir, version))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Read()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		ui.PrintError(err.Error())
		return err
	}
	defer db.Close()

	if err := database.MigrationStatus(ctx, db); err != nil {
		ui.PrintError(err.Error())
		return err
	}
	return nil
}
