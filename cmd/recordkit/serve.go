package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/recordkit/bootstrap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var hotReload bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP surface",
		Long: `Start the HTTP server exposing the module registry.

The server will:
  - Load configuration from recordkit.yaml (or --config)
  - Or load configuration from RECORDKIT_* environment variables
  - Import the modules listed under preload
  - Reload search_path and logging.level on file change or SIGHUP

Environment variables:
  RECORDKIT_SEARCH_PATH     - Search directories (path list)
  RECORDKIT_EXTENSIONS      - Source extensions, comma separated
  RECORDKIT_SERVER_PORT     - Server port (default: 8080)
  RECORDKIT_LOG_LEVEL       - Log level: debug, info, warn, error
  RECORDKIT_METRICS_ENABLED - Expose Prometheus metrics

Examples:
  recordkit serve
  recordkit serve --config /etc/recordkit/recordkit.yaml
  recordkit serve --hot-reload=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := opts.extraPaths()
			if err != nil {
				return err
			}

			// Hot reload needs a file to watch.
			if _, err := os.Stat(opts.cfgFile); err != nil {
				hotReload = false
			}

			app, err := bootstrap.New(bootstrap.Options{
				ConfigPath: opts.cfgFile,
				ExtraPaths: extra,
				HotReload:  hotReload,
				Version:    version,
				LogOutput:  os.Stderr,
			})
			if err != nil {
				return fmt.Errorf("initializing: %w", err)
			}
			return app.Run()
		},
	}

	cmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
	return cmd
}
