package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetimport/internal/store"
)

func newMigrateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.close()

			pool, err := app.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Migrate(cmd.Context(), pool, app.logger); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "migrated"})
		},
	}
}
