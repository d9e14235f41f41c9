package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

func newProfilesCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage saved column mapping profiles",
	}
	cmd.AddCommand(
		newProfilesListCmd(app),
		newProfilesSaveCmd(app),
		newProfilesMatchCmd(app),
	)
	return cmd
}

func newProfilesListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <entity>",
		Short: "List the profiles of an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.close()

			svc, err := app.newService(cmd.Context(), needs{profiles: true})
			if err != nil {
				return err
			}
			profiles, err := svc.ListProfiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profiles)
		},
	}
}

func newProfilesSaveCmd(app *app) *cobra.Command {
	var (
		sf   sessionFlags
		from string
	)

	cmd := &cobra.Command{
		Use:   "save <entity> <name>",
		Short: "Save a named mapping from --set pairs or from the mapping resolved for a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.close()
			ctx := cmd.Context()
			entity, name := args[0], args[1]

			svc, err := app.newService(ctx, needs{profiles: true})
			if err != nil {
				return err
			}

			var id string
			if from != "" {
				view, err := openSession(ctx, svc, entity, from, sf)
				if err != nil {
					return err
				}
				id, err = svc.SaveSessionProfile(ctx, view.ID, name)
				if err != nil {
					return err
				}
			} else {
				if len(sf.sets) == 0 {
					return fmt.Errorf("%w: give --set pairs or --from a file", core.ErrInvalidProfile)
				}
				mapping, err := parseAssignments("--set", sf.sets, cutLast)
				if err != nil {
					return err
				}
				id, err = svc.SaveProfile(ctx, name, entity, core.ColumnMapping(mapping))
				if err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id, "name": name, "entityType": entity})
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "Resolve the mapping from this file, then apply --profile and --set")
	return cmd
}

func newProfilesMatchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "match <entity> <file>",
		Short: "Rank saved profiles against the headers of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.close()

			svc, err := app.newService(cmd.Context(), needs{profiles: true})
			if err != nil {
				return err
			}
			view, err := openSession(cmd.Context(), svc, args[0], args[1], sessionFlags{})
			if err != nil {
				return err
			}
			matches, err := svc.MatchProfiles(cmd.Context(), view.ID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), matches)
		},
	}
}
