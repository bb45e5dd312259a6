package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPathsCmd(opts *rootOptions) *cobra.Command {
	var showExt bool

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the effective search path",
		Long: `Print the directories searched for module sources, in order.

Examples:
  recordkit paths
  recordkit paths -p ./structs --extensions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			out := cmd.OutOrStdout()
			for _, p := range app.SearchPath() {
				fmt.Fprintln(out, p)
			}
			if showExt {
				fmt.Fprintln(out)
				for _, ext := range app.Resolver.Extensions() {
					fmt.Fprintln(out, ext)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showExt, "extensions", false, "also print the source extensions tried")
	return cmd
}
