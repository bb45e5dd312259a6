package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check structure files without importing them",
		Long: `Translate each file and build its classes without registering a
module. The format follows the file extension.

Examples:
  recordkit validate structs/stock.xml
  recordkit validate structs/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				classes, err := app.Resolver.Validate(cmd.Context(), path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %s\n", crossMark, path)
					fmt.Fprintf(out, "    Error: %v\n", err)
					continue
				}
				fmt.Fprintf(out, "%s %s: %d classes\n", checkMark, path, len(classes))
				for _, c := range classes {
					fmt.Fprintf(out, "    %s\n", c)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files invalid", failed, len(args))
			}
			return nil
		},
	}
}
