package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/JonMunkholm/fleetimport/internal/core/tables" // Register all entities
)

func newRootCmd() *cobra.Command {
	app := &app{}

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Map, preview and commit fleet imports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !app.noEnvFile {
				_ = godotenv.Load()
			}
			return app.load(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.logLevel, "log-level", "", "Log level: debug, info, warn, error (default LOG_LEVEL or warn)")
	flags.StringVar(&app.advisor, "advisor", "", "Assisted mapping provider: none, fuzzy, openai (default ADVISOR_PROVIDER)")
	flags.StringVar(&app.profilesFile, "profiles-file", "", "YAML file for mapping profiles instead of the database")
	flags.BoolVar(&app.noEnvFile, "no-env-file", false, "Do not read .env from the working directory")

	cmd.AddCommand(
		newEntitiesCmd(),
		newFieldsCmd(),
		newMapCmd(app),
		newPreviewCmd(app),
		newCommitCmd(app),
		newProfilesCmd(app),
		newMigrateCmd(app),
	)
	return cmd
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "importctl:", err)
		os.Exit(1)
	}
}
