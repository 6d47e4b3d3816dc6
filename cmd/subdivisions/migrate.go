package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/subdivisions/pkg/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connectDatabase(cmd.Context()); err != nil {
				return err
			}
			return a.migrate()
		},
	}
}

func (a *app) migrate() error {
	ms := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return ms.MigratePostgres(a.db, a.cfg.DatabaseName)
}
