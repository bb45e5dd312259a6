package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/artpar/recordkit/bootstrap"
)

// rootOptions holds the global flags.
type rootOptions struct {
	cfgFile string
	paths   []string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "recordkit",
		Short: "Validated record classes from declarative structure files",
		Long: `recordkit builds record classes from XML, YAML, TOML or HCL
structure files found on a search path.

Each field of a structure names a descriptor kind (Integer, PosFloat,
SizedString, ...) that validates every assignment.

Quick start:
  recordkit inspect stock                       # Show the classes of stock.xml
  recordkit new stock.Stock GOOG 100 490.1      # Construct a validated record
  recordkit serve                               # Start the HTTP surface

Search path:
  --path directories first, then search_path from the config file, then
  RECORDKIT_PATH and the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "recordkit.yaml", "config file path")
	cmd.PersistentFlags().StringArrayVarP(&opts.paths, "path", "p", nil, "directory searched before the configured search path (repeatable)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "write logs to stderr")

	cmd.AddCommand(
		newInspectCmd(opts),
		newNewCmd(opts),
		newValidateCmd(opts),
		newPathsCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// newApp initializes the application for a one-shot command. Preloading is
// skipped and logs are discarded unless --verbose is given.
func (o *rootOptions) newApp() (*bootstrap.App, error) {
	var out io.Writer = io.Discard
	if o.verbose {
		out = os.Stderr
	}
	extra, err := o.extraPaths()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(bootstrap.Options{
		ConfigPath:  o.cfgFile,
		ExtraPaths:  extra,
		SkipPreload: true,
		Version:     version,
		LogOutput:   out,
	})
}

func (o *rootOptions) extraPaths() ([]string, error) {
	out := make([]string, 0, len(o.paths))
	for _, p := range o.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("path %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
