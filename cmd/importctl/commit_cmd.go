package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

func newCommitCmd(app *app) *cobra.Command {
	var (
		sf    sessionFlags
		of    optionFlags
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "commit <entity> <file>",
		Short: "Persist a file in chunks and print the outcome",
		Long: "Persist a file in chunks and print the outcome.\n\n" +
			"Progress lines are written to stderr. An interrupt cancels the commit\n" +
			"between chunks; rows already written stay written.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.close()
			ctx := cmd.Context()

			opts, err := of.options()
			if err != nil {
				return err
			}
			svc, err := app.newService(ctx, needs{database: true, profiles: sf.profile != ""})
			if err != nil {
				return err
			}
			view, err := openSession(ctx, svc, args[0], args[1], sf)
			if err != nil {
				return err
			}
			if len(view.MissingRequired) > 0 {
				app.logger.Warn("required fields are not mapped", "fields", view.MissingRequired)
			}

			commitID, err := svc.RunCommit(ctx, view.ID, core.RunRequest{Options: opts})
			if err != nil {
				return err
			}
			updates, err := svc.SubscribeCommit(commitID)
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			logged := 0
			done := ctx.Done()
		watch:
			for {
				select {
				case st, ok := <-updates:
					if !ok {
						break watch
					}
					for ; !quiet && logged < len(st.Log); logged++ {
						fmt.Fprintln(stderr, st.Log[logged])
					}
				case <-done:
					app.logger.Warn("interrupted, cancelling commit", "commit_id", commitID)
					if err := svc.CancelCommit(commitID); err != nil {
						return err
					}
					done = nil
				}
			}

			outcome, err := svc.CommitOutcome(context.WithoutCancel(ctx), commitID)
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintln(stderr, outcome.Summary())
			}
			if err := writeJSON(cmd.OutOrStdout(), outcome); err != nil {
				return err
			}

			return outcome.Err()
		},
	}
	sf.register(cmd)
	of.register(cmd)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress lines")
	return cmd
}
