// Package config manages sitedoc configuration and the .sitedoc workspace
// directory. Configuration is read from TOML or YAML, then overridden by
// SITEDOC_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kilupskalvis/sitedoc/internal/auth"
	"github.com/kilupskalvis/sitedoc/internal/core"
	"github.com/kilupskalvis/sitedoc/internal/store"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	WorkspaceDir = ".sitedoc"
	ConfigFile   = "config.toml"
	EnvPrefix    = "SITEDOC_"
)

// Config holds server and CLI settings.
type Config struct {
	Listen            string   `toml:"listen" yaml:"listen"`
	DataDir           string   `toml:"data_dir" yaml:"data_dir"`
	Backend           string   `toml:"backend" yaml:"backend"`
	Retention         int      `toml:"retention" yaml:"retention"`
	HistoryLimit      int      `toml:"history_limit" yaml:"history_limit"`
	JWTSecret         string   `toml:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	AdminToken        string   `toml:"admin_token,omitempty" yaml:"admin_token,omitempty"`
	WebhookURLs       []string `toml:"webhook_urls,omitempty" yaml:"webhook_urls,omitempty"`
	RequestsPerSecond float64  `toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int      `toml:"burst" yaml:"burst"`
	LogLevel          string   `toml:"log_level" yaml:"log_level"`
	LogFormat         string   `toml:"log_format" yaml:"log_format"`
	TLSCert           string   `toml:"tls_cert,omitempty" yaml:"tls_cert,omitempty"`
	TLSKey            string   `toml:"tls_key,omitempty" yaml:"tls_key,omitempty"`
	// URL points the CLI at a server instead of the local data directory.
	URL string `toml:"url,omitempty" yaml:"url,omitempty"`

	root string // path to the .sitedoc directory, set for workspace configs
}

// Defaults returns a configuration with every field set to its default.
func Defaults() *Config {
	return &Config{
		Listen:            "127.0.0.1:8720",
		DataDir:           "/var/lib/sitedoc",
		Backend:           store.BackendBbolt,
		Retention:         core.DefaultRetention,
		HistoryLimit:      core.HistoryCeiling,
		RequestsPerSecond: 10,
		Burst:             20,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load builds a configuration from defaults, the optional file at path and
// the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml", "":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from SITEDOC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("LISTEN", &c.Listen)
	str("DATA_DIR", &c.DataDir)
	str("BACKEND", &c.Backend)
	str("JWT_SECRET", &c.JWTSecret)
	str("ADMIN_TOKEN", &c.AdminToken)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("TLS_CERT", &c.TLSCert)
	str("TLS_KEY", &c.TLSKey)
	str("URL", &c.URL)

	if err := num("RETENTION", &c.Retention); err != nil {
		return err
	}
	if err := num("HISTORY_LIMIT", &c.HistoryLimit); err != nil {
		return err
	}
	if err := num("BURST", &c.Burst); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "REQUESTS_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sREQUESTS_PER_SECOND: %w", EnvPrefix, err)
		}
		c.RequestsPerSecond = f
	}
	if v, ok := lookup(EnvPrefix + "WEBHOOK_URLS"); ok && v != "" {
		c.WebhookURLs = SplitList(v)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend {
	case store.BackendBbolt, store.BackendSQLite:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", store.BackendBbolt, store.BackendSQLite, c.Backend)
	}
	if c.Retention < 1 {
		return fmt.Errorf("retention must be at least 1, got %d", c.Retention)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("history_limit must be at least 1, got %d", c.HistoryLimit)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rate limiting is enabled")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < auth.MinSecretLen {
		return fmt.Errorf("jwt_secret must be at least %d bytes", auth.MinSecretLen)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Save writes the configuration to path in the format implied by its extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = toml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// Secrets may be present.
	return os.WriteFile(path, data, 0600)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger builds a slog logger for the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
