package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/backend"
)

func newModelsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "models",
		Short:       "List available transcription models",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return writeJSON(cmd, backend.Catalog())
			}
			rows := make([][]string, 0)
			for _, spec := range backend.Catalog() {
				key := spec.Key
				if key == backend.DefaultModelKey {
					key += " (default)"
				}
				rows = append(rows, []string{
					key,
					spec.Name,
					spec.Provider,
					fmt.Sprintf("$%.3f", spec.CostPerPage),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Key", "Model", "Provider", "Cost/Page"},
				rows, 4,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the catalog as JSON")
	return cmd
}
