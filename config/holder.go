package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the file watcher waits for writes to settle
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Holder owns the live configuration. Readers call Get; the file watcher,
// SIGHUP and explicit Reload calls swap in a freshly loaded Config.
type Holder struct {
	mu       sync.RWMutex
	current  *Config
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	changeHooks []func(old, new *Config)
	reloadHooks []func(error)

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithDebounce sets the quiet period before a file change triggers a reload.
func WithDebounce(d time.Duration) HolderOption {
	return func(h *Holder) {
		h.debounce = d
	}
}

// NewHolder loads path and returns a holder for it.
func NewHolder(path string, logger zerolog.Logger, opts ...HolderOption) (*Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	cfg, err := Load(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	h := &Holder{
		current:  cfg,
		path:     abs,
		debounce: DefaultDebounce,
		logger:   logger.With().Str("component", "config").Logger(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Path returns the absolute path of the configuration file.
func (h *Holder) Path() string {
	return h.path
}

// Get returns the configuration in effect.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnChange registers fn to run after every successful reload.
func (h *Holder) OnChange(fn func(old, new *Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changeHooks = append(h.changeHooks, fn)
}

// OnReload registers fn to run after every reload attempt with its outcome.
func (h *Holder) OnReload(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloadHooks = append(h.reloadHooks, fn)
}

// Reload loads the file again. A file that fails to load or validate
// leaves the previous configuration in effect.
func (h *Holder) Reload() error {
	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping previous config")
		h.afterReload(err)
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	hooks := slices.Clone(h.changeHooks)
	h.mu.Unlock()

	changed := Diff(prev, next)
	h.logger.Info().Strs("changed", changed).Msg("configuration reloaded")
	for _, field := range changed {
		if !slices.Contains(ReloadableFields(), field) {
			h.logger.Warn().Str("field", field).Msg("change takes effect after restart")
		}
	}

	for _, fn := range hooks {
		fn(prev, next)
	}
	h.afterReload(nil)
	return nil
}

func (h *Holder) afterReload(err error) {
	h.mu.RLock()
	hooks := slices.Clone(h.reloadHooks)
	h.mu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

// WatchFile reloads whenever the file is written or replaced. The parent
// directory is watched so editors that save by renaming are seen too.
func (h *Holder) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = w

	go h.watch(w)

	h.logger.Info().Str("path", h.path).Dur("debounce", h.debounce).Msg("watching config file")
	return nil
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-sig:
				h.logger.Info().Msg("SIGHUP received")
				h.Reload()
			case <-h.done:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. Later calls do nothing.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

// watch coalesces bursts of events for the config file into one reload
// after the debounce period.
func (h *Holder) watch(w *fsnotify.Watcher) {
	name := filepath.Base(h.path)

	timer := time.NewTimer(h.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			h.logger.Debug().Str("op", ev.Op.String()).Msg("config file event")
			timer.Reset(h.debounce)

		case <-timer.C:
			h.Reload()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.done:
			return
		}
	}
}

// Diff returns the dotted names of the top-level settings that differ.
func Diff(old, new *Config) []string {
	var out []string
	add := func(field string, changed bool) {
		if changed {
			out = append(out, field)
		}
	}
	add("search_path", !slices.Equal(old.SearchPath, new.SearchPath))
	add("extensions", !slices.Equal(old.Extensions, new.Extensions))
	add("preload", !slices.Equal(old.Preload, new.Preload))
	add("server.host", old.Server.Host != new.Server.Host)
	add("server.port", old.Server.Port != new.Server.Port)
	add("server.read_timeout", old.Server.ReadTimeout != new.Server.ReadTimeout)
	add("server.write_timeout", old.Server.WriteTimeout != new.Server.WriteTimeout)
	add("logging.level", old.Logging.Level != new.Logging.Level)
	add("logging.format", old.Logging.Format != new.Logging.Format)
	add("metrics.enabled", old.Metrics.Enabled != new.Metrics.Enabled)
	add("metrics.path", old.Metrics.Path != new.Metrics.Path)
	return out
}

// ReloadableFields lists the settings applied without a restart.
func ReloadableFields() []string {
	return []string{"search_path", "logging.level"}
}

// NonReloadableFields lists the settings that need a restart.
func NonReloadableFields() []string {
	return []string{
		"extensions",
		"preload",
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"logging.format",
		"metrics.enabled",
		"metrics.path",
	}
}
