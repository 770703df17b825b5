package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/receiptvault/internal/references"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply record store schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			db, err := references.Open(cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()
			return references.RunMigrations(cmd.Context(), db)
		},
	}
}
