package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

type fieldOutput struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Recommended bool     `json:"recommended"`
	Synonyms    []string `json:"synonyms,omitempty"`
	EnumValues  []string `json:"enumValues,omitempty"`
}

func newEntitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List importable entity types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := core.All()
			infos := make([]core.EntityInfo, len(defs))
			for i, def := range defs {
				infos[i] = def.Info
			}
			return writeJSON(cmd.OutOrStdout(), infos)
		},
	}
}

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <entity>",
		Short: "List the recognized fields of an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := core.CatalogFor(args[0])
			if err != nil {
				return err
			}
			out := make([]fieldOutput, len(cat.Fields))
			for i, f := range cat.Fields {
				out[i] = fieldOutput{
					Name:        f.Name,
					Label:       f.Label,
					Type:        f.Type.String(),
					Required:    f.Required,
					Recommended: f.Recommended,
					Synonyms:    f.Synonyms,
					EnumValues:  f.EnumValues,
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
