package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"datasteward/internal/bootstrap"
	"datasteward/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the MySQL tables and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := bootstrap.Migrate(context.Background(), cfg); err != nil {
			return err
		}
		log.Printf("migrations applied")
		return nil
	},
}
