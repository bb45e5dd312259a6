// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file configuration.
const (
	EnvSearchPath   = "RECORDKIT_SEARCH_PATH"
	EnvExtensions   = "RECORDKIT_EXTENSIONS"
	EnvPreload      = "RECORDKIT_PRELOAD"
	EnvServerHost   = "RECORDKIT_SERVER_HOST"
	EnvServerPort   = "RECORDKIT_SERVER_PORT"
	EnvReadTimeout  = "RECORDKIT_SERVER_READ_TIMEOUT"
	EnvWriteTimeout = "RECORDKIT_SERVER_WRITE_TIMEOUT"
	EnvLogLevel     = "RECORDKIT_LOG_LEVEL"
	EnvLogFormat    = "RECORDKIT_LOG_FORMAT"
	EnvMetrics      = "RECORDKIT_METRICS_ENABLED"
	EnvMetricsPath  = "RECORDKIT_METRICS_PATH"
)

// Config is the root configuration structure.
type Config struct {
	// SearchPath lists directories searched for module sources. Empty means
	// the process default (RECORDKIT_PATH, then the working directory).
	SearchPath []string `yaml:"search_path"`

	// Extensions are the source file extensions tried, in order.
	Extensions []string `yaml:"extensions"`

	// Preload lists modules imported at startup.
	Preload []string `yaml:"preload"`

	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// Load reads configuration from a YAML file. Relative search_path entries
// are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	resolveRelative(&cfg, filepath.Dir(path))
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration from environment variables alone.
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists and otherwise builds the
// configuration from the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// Default returns the configuration used when nothing is provided.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

func resolveRelative(cfg *Config, base string) {
	for i, p := range cfg.SearchPath {
		if p != "" && !filepath.IsAbs(p) {
			cfg.SearchPath[i] = filepath.Join(base, p)
		}
	}
}

// envOverrides maps each RECORDKIT_* variable to the setting it replaces.
// Values that fail to parse are ignored and leave the file value in place.
var envOverrides = map[string]func(cfg *Config, v string){
	EnvSearchPath: func(cfg *Config, v string) { cfg.SearchPath = filepath.SplitList(v) },
	EnvExtensions: func(cfg *Config, v string) { cfg.Extensions = splitComma(v) },
	EnvPreload:    func(cfg *Config, v string) { cfg.Preload = splitComma(v) },
	EnvServerHost: func(cfg *Config, v string) { cfg.Server.Host = v },
	EnvServerPort: func(cfg *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	},
	EnvReadTimeout:  func(cfg *Config, v string) { setDuration(&cfg.Server.ReadTimeout, v) },
	EnvWriteTimeout: func(cfg *Config, v string) { setDuration(&cfg.Server.WriteTimeout, v) },
	EnvLogLevel:     func(cfg *Config, v string) { cfg.Logging.Level = v },
	EnvLogFormat:    func(cfg *Config, v string) { cfg.Logging.Format = v },
	EnvMetrics:      func(cfg *Config, v string) { cfg.Metrics.Enabled = parseBool(v) },
	EnvMetricsPath:  func(cfg *Config, v string) { cfg.Metrics.Path = v },
}

// applyEnvOverrides lets the environment win over the file.
func applyEnvOverrides(cfg *Config) {
	for name, set := range envOverrides {
		if v := os.Getenv(name); v != "" {
			set(cfg, v)
		}
	}
}

func setDuration(dst *time.Duration, v string) {
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func splitComma(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setDefaults(cfg *Config) {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".xml"}
	}
	for i, ext := range cfg.Extensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			cfg.Extensions[i] = "." + ext
		}
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	var errs []string

	for i, p := range cfg.SearchPath {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Sprintf("search_path[%d] is empty", i))
		}
	}
	for i, ext := range cfg.Extensions {
		if ext == "" || ext == "." || strings.ContainsAny(ext, `/\`) {
			errs = append(errs, fmt.Sprintf("extensions[%d] %q is not a file extension", i, ext))
		}
	}
	for i, name := range cfg.Preload {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Sprintf("preload[%d] is empty", i))
		}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		errs = append(errs, fmt.Sprintf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format))
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("metrics.path must start with '/', got %q", cfg.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
