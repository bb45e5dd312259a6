// Package bootstrap wires configuration, logging, the module registry and
// the HTTP surface into a running application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/recordkit/adapters/clock"
	apihttp "github.com/artpar/recordkit/adapters/http"
	"github.com/artpar/recordkit/adapters/idgen"
	"github.com/artpar/recordkit/adapters/metrics"
	"github.com/artpar/recordkit/config"
	"github.com/artpar/recordkit/core/events"
	"github.com/artpar/recordkit/core/importer"
)

// historySize is the number of lifecycle events kept for GET /events.
const historySize = 256

// Options controls application initialization.
type Options struct {
	// ConfigPath is the YAML configuration file. A missing file falls back
	// to environment configuration.
	ConfigPath string

	// ExtraPaths are searched before the configured search path.
	ExtraPaths []string

	// HotReload watches the configuration file and SIGHUP. It needs an
	// existing ConfigPath.
	HotReload bool

	// SkipPreload leaves the configured preload list unimported.
	SkipPreload bool

	// Version is reported by the HTTP surface.
	Version string

	// LogOutput receives log lines (default: os.Stderr).
	LogOutput io.Writer
}

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Registry   *importer.Registry
	Resolver   *importer.PathResolver
	Metrics    *metrics.Collector
	Bus        *events.Bus
	History    *events.History
	HTTPServer *http.Server

	holder     *config.Holder
	extraPaths []string
}

// New creates and initializes the application and imports the configured
// preload modules.
func New(opts Options) (*App, error) {
	a := &App{extraPaths: append([]string(nil), opts.ExtraPaths...)}

	if opts.HotReload {
		if err := a.initHolder(opts); err != nil {
			return nil, err
		}
	} else {
		cfg, err := config.LoadWithFallback(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		a.Config = cfg
		a.Logger = setupLogger(cfg.Logging, opts.LogOutput)
	}

	a.Logger.Info().
		Strs("search_path", a.searchPath(a.Config)).
		Strs("extensions", a.Config.Extensions).
		Msg("initializing recordkit")

	a.Bus = events.NewBus(a.Logger)
	a.History = events.NewHistory(historySize)
	a.History.Attach(a.Bus)

	regOpts := []importer.Option{
		importer.WithLogger(a.Logger),
		importer.WithEventBus(a.Bus),
		importer.WithIDGenerator(idgen.TimeOrdered{}),
		importer.WithClock(clock.Real{}),
		importer.WithDefaultPath(a.searchPath(a.Config)),
	}
	if a.Config.Metrics.Enabled {
		a.Metrics = metrics.New()
		regOpts = append(regOpts, importer.WithRecorder(a.Metrics))
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	a.Registry = importer.NewRegistry(regOpts...)
	a.Resolver = a.Registry.Install(nil, importer.WithExtensions(a.Config.Extensions...))

	if a.holder != nil {
		a.watchConfig()
	}

	if !opts.SkipPreload {
		if err := a.Preload(context.Background()); err != nil {
			a.stopHolder()
			return nil, err
		}
	}

	a.initHTTPServer(opts.Version)
	return a, nil
}

func (a *App) initHolder(opts Options) error {
	if opts.ConfigPath == "" {
		return errors.New("hot reload needs a config file")
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.Logger = setupLogger(cfg.Logging, opts.LogOutput)

	h, err := config.NewHolder(opts.ConfigPath, a.Logger)
	if err != nil {
		return err
	}
	a.holder = h
	a.Config = h.Get()
	return nil
}

// watchConfig applies reloadable settings when the configuration changes.
func (a *App) watchConfig() {
	a.holder.OnChange(func(old, new *config.Config) {
		a.Registry.SetDefaultPath(a.searchPath(new))

		if old.Logging.Level != new.Logging.Level {
			if level, err := zerolog.ParseLevel(new.Logging.Level); err == nil {
				zerolog.SetGlobalLevel(level)
			}
		}
	})

	a.holder.OnReload(func(err error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloaded(err)
		}
		e := events.Event{Name: events.ConfigReloaded, Origin: a.holder.Path()}
		if err != nil {
			e.Error = err.Error()
		}
		a.Bus.Publish(context.Background(), e)
	})

	if err := a.holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP only")
	}
	a.holder.WatchSignals()
}

// Preload imports every module listed in the configuration. The first
// failure aborts.
func (a *App) Preload(ctx context.Context) error {
	for _, name := range a.Config.Preload {
		mod, err := a.Registry.Import(ctx, name)
		if err != nil {
			return fmt.Errorf("preload %s: %w", name, err)
		}
		a.Logger.Info().
			Str("module", mod.Name).
			Strs("classes", mod.ClassNames()).
			Msg("module preloaded")
	}
	return nil
}

// CurrentConfig returns the configuration in effect, including reloads.
// Config keeps the startup configuration.
func (a *App) CurrentConfig() *config.Config {
	if a.holder != nil {
		return a.holder.Get()
	}
	return a.Config
}

// SearchPath returns the effective search path.
func (a *App) SearchPath() []string {
	return a.Registry.DefaultPath()
}

// searchPath prepends the extra paths to the configured search path. An
// empty configured path means the process default.
func (a *App) searchPath(cfg *config.Config) []string {
	base := cfg.SearchPath
	if len(base) == 0 {
		base = importer.ProcessPath()
	}
	out := make([]string, 0, len(a.extraPaths)+len(base))
	out = append(out, a.extraPaths...)
	return append(out, base...)
}

func (a *App) initHTTPServer(version string) {
	router := apihttp.NewRouter(a.Registry, a.Logger, apihttp.RouterConfig{
		Metrics:     a.Metrics,
		MetricsPath: a.Config.Metrics.Path,
		History:     a.History,
		Version:     version,
	})

	a.HTTPServer = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until SIGINT, SIGTERM or a server
// error.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.stopHolder()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.stopHolder()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			return err
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Reload re-reads the configuration file. It is a no-op without hot reload.
func (a *App) Reload() error {
	if a.holder == nil {
		return nil
	}
	return a.holder.Reload()
}

func (a *App) stopHolder() {
	if a.holder != nil {
		a.holder.Stop()
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
