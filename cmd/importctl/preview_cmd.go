package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// optionFlags are the import options shared by preview and commit.
type optionFlags struct {
	updateExisting    bool
	requireWarningAck bool
	ackWarnings       bool
	defaults          []string
	entityOptions     []string
}

func (f *optionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.updateExisting, "update-existing", false, "Update records whose natural key already exists instead of skipping them")
	cmd.Flags().BoolVar(&f.requireWarningAck, "require-warning-ack", false, "Treat warning rows as errors unless --ack-warnings is set")
	cmd.Flags().BoolVar(&f.ackWarnings, "ack-warnings", false, "Acknowledge warning rows")
	cmd.Flags().StringArrayVar(&f.defaults, "default", nil, `Pre-selected value for the whole import, "field=value"`)
	cmd.Flags().StringSliceVar(&f.entityOptions, "entity-option", nil, "Enable an entity option, e.g. treatAsHistorical for loads")
}

func (f *optionFlags) options() (core.ImportOptions, error) {
	opts := core.ImportOptions{
		UpdateExisting:       f.updateExisting,
		RequireWarningAck:    f.requireWarningAck,
		WarningsAcknowledged: f.ackWarnings,
	}
	if len(f.defaults) > 0 {
		defaults, err := parseAssignments("--default", f.defaults, strings.Cut)
		if err != nil {
			return opts, err
		}
		opts.Defaults = defaults
	}
	if len(f.entityOptions) > 0 {
		opts.Entity = make(core.EntityOptions, len(f.entityOptions))
		for _, name := range f.entityOptions {
			opts.Entity[strings.TrimSpace(name)] = true
		}
	}
	return opts, nil
}

type previewSummary struct {
	TotalRows     int      `json:"totalRows"`
	ValidCount    int      `json:"validCount"`
	WarningCount  int      `json:"warningCount"`
	InvalidCount  int      `json:"invalidCount"`
	Importable    int      `json:"importable"`
	MissingFields []string `json:"missingFields,omitempty"`
}

func newPreviewCmd(app *app) *cobra.Command {
	var (
		sf      sessionFlags
		of      optionFlags
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "preview <entity> <file>",
		Short: "Classify every row of a file without writing anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.close()

			opts, err := of.options()
			if err != nil {
				return err
			}
			svc, err := app.newService(cmd.Context(), needs{profiles: sf.profile != ""})
			if err != nil {
				return err
			}
			view, err := openSession(cmd.Context(), svc, args[0], args[1], sf)
			if err != nil {
				return err
			}

			res, err := svc.RunPreview(cmd.Context(), view.ID, core.RunRequest{Options: opts})
			if err != nil {
				return err
			}
			if summary {
				return writeJSON(cmd.OutOrStdout(), previewSummary{
					TotalRows:     res.TotalRows,
					ValidCount:    res.ValidCount,
					WarningCount:  res.WarningCount,
					InvalidCount:  res.InvalidCount,
					Importable:    res.Importable,
					MissingFields: res.MissingFields,
				})
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	sf.register(cmd)
	of.register(cmd)
	cmd.Flags().BoolVar(&summary, "summary", false, "Print counts only")
	return cmd
}
