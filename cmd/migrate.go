package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/delta-incubator/riverbank/catalog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog schema in the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		// The serve command owns the viper binding for this key, so read the
		// local flag first and fall back to config/env.
		databaseURL, _ := cmd.Flags().GetString("database-url")
		if databaseURL == "" {
			databaseURL = viper.GetString("database_url")
		}
		if databaseURL == "" {
			return fmt.Errorf("database_url is required")
		}

		ctx := cmd.Context()
		store, err := catalog.NewPGStore(ctx, databaseURL, slog.Default())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return err
		}
		slog.Info("catalog schema is up to date")
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("database-url", "", "Postgres catalog connection string")
	rootCmd.AddCommand(migrateCmd)
}
