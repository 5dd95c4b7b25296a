// Package config loads the formwizard server configuration from a YAML file,
// an optional .env file and FORMWIZARD_* environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the server configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	WizardsDir string           `yaml:"wizards_dir"`
	Store      StoreConfig      `yaml:"store"`
	Log        LogConfig        `yaml:"log"`
	Conditions ConditionsConfig `yaml:"conditions"`
}

// StoreConfig selects and configures the tempstore backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// DSN is the SQLite database path.
	DSN      string        `yaml:"dsn"`
	RedisURL string        `yaml:"redis_url"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConditionsConfig configures the built-in condition plugins.
type ConditionsConfig struct {
	// Bundles are the node bundles offered by the node_type plugin.
	Bundles map[string]string `yaml:"bundles"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Listen:     "127.0.0.1:8088",
		WizardsDir: "wizards",
		Store: StoreConfig{
			Driver: DriverMemory,
			Prefix: "formwizard:",
			TTL:    7 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Conditions: ConditionsConfig{
			Bundles: map[string]string{"article": "Article", "page": "Basic page"},
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Maps merge on unmarshal; a configured bundle list replaces the default.
		defaultBundles := cfg.Conditions.Bundles
		cfg.Conditions.Bundles = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if cfg.Conditions.Bundles == nil {
			cfg.Conditions.Bundles = defaultBundles
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment files without overriding variables that are
// already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from FORMWIZARD_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set("FORMWIZARD_LISTEN", &c.Listen)
	set("FORMWIZARD_WIZARDS_DIR", &c.WizardsDir)
	set("FORMWIZARD_STORE_DRIVER", &c.Store.Driver)
	set("FORMWIZARD_STORE_DSN", &c.Store.DSN)
	set("FORMWIZARD_REDIS_URL", &c.Store.RedisURL)
	set("FORMWIZARD_LOG_LEVEL", &c.Log.Level)
	set("FORMWIZARD_LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("FORMWIZARD_STORE_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Store.TTL = d
		}
	}
}

// Validate checks that the selected store driver is fully configured.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is empty")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store driver %q needs store.dsn", c.Store.Driver)
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("config: store driver %q needs store.redis_url", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q (want memory, sqlite or redis)", c.Store.Driver)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return lvl, fmt.Errorf("config: invalid log level %q", l.Level)
	}
	return lvl, nil
}

// NewLogger builds the logger described by l, writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
