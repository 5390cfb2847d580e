// Package config manages application configuration from various sources.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/viper"
	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/token"
	"github.com/sst/mentions/internal/trigger"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError reports a single rejected setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Data defines storage configuration.
type Data struct {
	Directory string `json:"directory,omitempty"`
}

// FilesConfig tunes the workspace file provider.
type FilesConfig struct {
	Include string   `json:"include,omitempty"`
	Ignore  []string `json:"ignore,omitempty"`
	Max     int      `json:"max,omitempty"`
}

// SearchConfig defines how candidates are fetched.
type SearchConfig struct {
	// Debounce and Timeout are in milliseconds.
	Debounce   int         `json:"debounce"`
	Timeout    int         `json:"timeout"`
	MaxResults int         `json:"maxResults"`
	Remote     string      `json:"remote,omitempty"`
	Catalog    string      `json:"catalog,omitempty"`
	Files      FilesConfig `json:"files"`
}

// OverlayConfig defines the suggestion list behaviour.
type OverlayConfig struct {
	MaxVisible    int               `json:"maxVisible"`
	Wrap          bool              `json:"wrap,omitempty"`
	EmptyMessages map[string]string `json:"emptyMessages,omitempty"`
}

// TokensConfig defines how confirmed tokens are managed.
type TokensConfig struct {
	Duplicates string `json:"duplicates"`
	Strict     bool   `json:"strict,omitempty"`
}

// RecentsConfig defines the recently used selections offered as presets.
type RecentsConfig struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

// Config is the main configuration structure for the application.
type Config struct {
	Data       Data              `json:"data"`
	WorkingDir string            `json:"wd,omitempty"`
	Debug      bool              `json:"debug,omitempty"`
	Triggers   map[string]string `json:"triggers,omitempty"`
	Search     SearchConfig      `json:"search"`
	Overlay    OverlayConfig     `json:"overlay"`
	Tokens     TokensConfig      `json:"tokens"`
	Presets    []suggest.Preset  `json:"presets,omitempty"`
	Recents    RecentsConfig     `json:"recents"`
	Server     ServerConfig      `json:"server"`
}

// Application constants
const (
	defaultDataDirectory = ".mentions"
	defaultLogLevel      = "info"
	appName              = "mentions"
)

// Global configuration instance
var cfg *Config

// Load initializes the configuration from environment variables and config files.
// If debug is true, debug mode is enabled and log level is set to debug.
// It returns an error if configuration loading fails.
func Load(workingDir string, debug bool, lvl *slog.LevelVar) (*Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	cfg = &Config{
		WorkingDir: workingDir,
	}

	configureViper()
	setDefaults(debug)

	// Read global config
	if err := readConfig(viper.ReadInConfig()); err != nil {
		return cfg, err
	}

	// Load and merge local config
	if err := mergeLocalConfig(workingDir); err != nil {
		return cfg, err
	}

	// Apply configuration to the struct
	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.WorkingDir = workingDir

	if lvl != nil {
		if cfg.Debug {
			lvl.Set(slog.LevelDebug)
		} else {
			lvl.Set(slog.LevelInfo)
		}
	}

	// Validate configuration
	if err := Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// configureViper sets up viper's configuration paths and environment variables.
func configureViper() {
	viper.SetConfigName(fmt.Sprintf(".%s", appName))
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
	viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// setDefaults configures default values for configuration options.
func setDefaults(debug bool) {
	viper.SetDefault("data.directory", defaultDataDirectory)
	viper.SetDefault("search.debounce", int(suggest.DefaultDebounce/time.Millisecond))
	viper.SetDefault("search.timeout", 5000)
	viper.SetDefault("search.maxResults", 50)
	viper.SetDefault("search.files.include", "**/*")
	viper.SetDefault("search.files.max", 5000)
	viper.SetDefault("overlay.maxVisible", 7)
	viper.SetDefault("overlay.wrap", false)
	viper.SetDefault("tokens.duplicates", string(token.AllowDuplicates))
	viper.SetDefault("recents.enabled", true)
	viper.SetDefault("recents.limit", 5)
	viper.SetDefault("server.addr", "127.0.0.1:7878")

	if debug {
		viper.SetDefault("debug", true)
		viper.Set("log.level", "debug")
	} else {
		viper.SetDefault("debug", false)
		viper.SetDefault("log.level", defaultLogLevel)
	}
}

// readConfig handles the result of reading a configuration file.
func readConfig(err error) error {
	if err == nil {
		return nil
	}

	// It's okay if the config file doesn't exist
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}

	return fmt.Errorf("failed to read config: %w", err)
}

// mergeLocalConfig loads and merges configuration from the local directory.
func mergeLocalConfig(workingDir string) error {
	local := viper.New()
	local.SetConfigName(fmt.Sprintf(".%s", appName))
	local.SetConfigType("json")
	local.AddConfigPath(workingDir)

	if err := readConfig(local.ReadInConfig()); err != nil {
		return fmt.Errorf("local config: %w", err)
	}
	return viper.MergeConfigMap(local.AllSettings())
}

// Validate checks if the configuration is valid.
func Validate() error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, reason string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf(reason, args...)})
	}

	for t, kind := range c.Triggers {
		r, size := utf8.DecodeRuneInString(t)
		if size == 0 || size != len(t) {
			invalid("triggers", "%q must be a single character", t)
			continue
		}
		if unicode.IsSpace(r) || unicode.IsLetter(r) || unicode.IsDigit(r) {
			invalid("triggers", "%q cannot be a letter, digit or space", t)
		}
		if kind == "" {
			invalid("triggers", "%q has no kind", t)
		}
	}
	if c.Search.Debounce < 0 {
		invalid("search.debounce", "must not be negative")
	}
	if c.Search.Timeout < 0 {
		invalid("search.timeout", "must not be negative")
	}
	if c.Search.MaxResults < 0 {
		invalid("search.maxResults", "must not be negative")
	}
	if c.Search.Remote != "" {
		u, err := url.Parse(c.Search.Remote)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			invalid("search.remote", "%q is not an http(s) url", c.Search.Remote)
		}
	}
	if c.Overlay.MaxVisible <= 0 {
		invalid("overlay.maxVisible", "must be positive")
	}
	if !token.DuplicatePolicy(c.Tokens.Duplicates).Valid() {
		invalid("tokens.duplicates", "%q is not one of allow, reject", c.Tokens.Duplicates)
	}
	if c.Recents.Limit < 0 {
		invalid("recents.limit", "must not be negative")
	}
	for i, p := range c.Presets {
		if p.ID == "" || p.Label == "" {
			invalid(fmt.Sprintf("presets[%d]", i), "id and label are required")
		}
	}
	return errors.Join(errs...)
}

// TriggerMap returns the configured triggers, or the defaults when none are
// set.
func (c *Config) TriggerMap() map[rune]trigger.Kind {
	if len(c.Triggers) == 0 {
		return trigger.DefaultTriggers
	}
	out := make(map[rune]trigger.Kind, len(c.Triggers))
	for t, kind := range c.Triggers {
		r, _ := utf8.DecodeRuneInString(t)
		out[r] = trigger.Kind(kind)
	}
	return out
}

func (c *Config) DebounceDuration() time.Duration {
	return time.Duration(c.Search.Debounce) * time.Millisecond
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Search.Timeout) * time.Millisecond
}

// DataDir resolves the data directory against the working directory.
func (c *Config) DataDir() string {
	if filepath.IsAbs(c.Data.Directory) {
		return c.Data.Directory
	}
	return filepath.Join(c.WorkingDir, c.Data.Directory)
}

// CatalogPath resolves the catalog file against the working directory.
func (c *Config) CatalogPath() string {
	if c.Search.Catalog == "" || filepath.IsAbs(c.Search.Catalog) {
		return c.Search.Catalog
	}
	return filepath.Join(c.WorkingDir, c.Search.Catalog)
}

// Get returns the current configuration.
// It's safe to call this function multiple times.
func Get() *Config {
	return cfg
}

// WorkingDirectory returns the current working directory from the configuration.
func WorkingDirectory() string {
	if cfg == nil {
		panic("config not loaded")
	}
	return cfg.WorkingDir
}

// Reset forgets the loaded configuration so that Load reads it again.
func Reset() {
	cfg = nil
	viper.Reset()
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config not loaded")
	}
	dir := cfg.DataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
