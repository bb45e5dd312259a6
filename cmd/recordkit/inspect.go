package main

import (
	"github.com/spf13/cobra"

	"github.com/artpar/recordkit/core/formatter"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var (
		output   string
		noHeader bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <module>",
		Short: "Import a module and print its classes",
		Long: `Import a module and print each class with its constructor
parameters and the kind and rules of every field.

Examples:
  recordkit inspect stock
  recordkit inspect portfolio.stock --output json
  recordkit inspect stock -p ./structs -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter.Lookup(output)
			if err != nil {
				return err
			}

			app, err := opts.newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			mod, err := app.Registry.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return f.FormatModule(cmd.OutOrStdout(), mod, formatter.FormatOptions{NoHeader: noHeader})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml (yml)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "omit table headers")
	return cmd
}
