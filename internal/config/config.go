// Package config loads reqsyncd settings from a YAML file with environment
// variable overrides, and watches the file for external updates.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides. A key like
// github.token maps to REQSYNC_GITHUB_TOKEN.
const EnvPrefix = "REQSYNC"

// DefaultConfigFile is searched for in the working directory when no
// explicit path is given.
const DefaultConfigFile = "reqsync.yaml"

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Settings is the full reqsyncd configuration.
type Settings struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	Store     StoreSettings     `mapstructure:"store" yaml:"store"`
	GitHub    GitHubSettings    `mapstructure:"github" yaml:"github"`
	Reconcile ReconcileSettings `mapstructure:"reconcile" yaml:"reconcile"`
}

// StoreSettings selects and configures the request store.
type StoreSettings struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "mysql" or "memory"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// GitHubSettings configures the external tracker. Leaving token, owner or
// repo empty disables outbound sync entirely.
type GitHubSettings struct {
	Token         string `mapstructure:"token" yaml:"token"`
	Owner         string `mapstructure:"owner" yaml:"owner"`
	Repo          string `mapstructure:"repo" yaml:"repo"`
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	APIBaseURL    string `mapstructure:"api_base_url" yaml:"api_base_url"`
}

// ReconcileSettings configures the reconciliation scheduler.
type ReconcileSettings struct {
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
	CallDelay    time.Duration `mapstructure:"call_delay" yaml:"call_delay"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Settings {
	return &Settings{
		ListenAddr: ":8080",
		Store: StoreSettings{
			Driver: DriverMemory,
		},
		Reconcile: ReconcileSettings{
			Interval:     15 * time.Minute,
			StartupDelay: 10 * time.Second,
			CallDelay:    250 * time.Millisecond,
		},
	}
}

// Load reads settings from the given file path (or DefaultConfigFile in the
// working directory when path is empty), applies REQSYNC_* environment
// overrides, and validates the result. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, ".yaml"))
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reqsync")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// setDefaults registers every default so env-only configuration works
// without a file on disk.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	// Empty defaults still register the keys, which is what lets
	// REQSYNC_GITHUB_* env overrides reach Unmarshal without a file.
	v.SetDefault("github.token", "")
	v.SetDefault("github.owner", "")
	v.SetDefault("github.repo", "")
	v.SetDefault("github.webhook_secret", "")
	v.SetDefault("github.api_base_url", "")
	v.SetDefault("reconcile.interval", d.Reconcile.Interval)
	v.SetDefault("reconcile.startup_delay", d.Reconcile.StartupDelay)
	v.SetDefault("reconcile.call_delay", d.Reconcile.CallDelay)
}

// Validate checks structural validity. Absent GitHub credentials are valid
// configuration (sync disabled), not an error.
func (s *Settings) Validate() error {
	switch s.Store.Driver {
	case DriverMySQL:
		if s.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required with the mysql driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q (want %q or %q)", s.Store.Driver, DriverMySQL, DriverMemory)
	}
	if s.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if s.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval must be positive")
	}
	if s.Reconcile.StartupDelay < 0 || s.Reconcile.CallDelay < 0 {
		return fmt.Errorf("reconcile delays must not be negative")
	}
	return nil
}

// SyncConfigured reports whether all three GitHub coordinates are set.
func (s *Settings) SyncConfigured() bool {
	return s.GitHub.Token != "" && s.GitHub.Owner != "" && s.GitHub.Repo != ""
}
