package main

import (
	"github.com/spf13/cobra"

	"github.com/maltedev/priceguess-ingest/internal/config"
	"github.com/maltedev/priceguess-ingest/internal/database"
)

var migrateCommand = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCommand)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	_, cancel, a, err := setup(func(cfg *config.Config) {
		cfg.Database.Enabled = true
	})
	if err != nil {
		return err
	}
	defer cancel()
	defer a.Close()

	if err := database.Migrate(a.Config.Database.DSN()); err != nil {
		return err
	}
	a.Logger.Info("migrations applied", "database", a.Config.Database.Name)
	return nil
}
