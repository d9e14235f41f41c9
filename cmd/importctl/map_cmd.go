package main

import (
	"github.com/spf13/cobra"
)

func newMapCmd(app *app) *cobra.Command {
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:   "map <entity> <file>",
		Short: "Show the column mapping resolved for a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.close()

			svc, err := app.newService(cmd.Context(), needs{profiles: sf.profile != ""})
			if err != nil {
				return err
			}
			view, err := openSession(cmd.Context(), svc, args[0], args[1], sf)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}
	sf.register(cmd)
	return cmd
}
