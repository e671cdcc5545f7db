package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// SyncConfig controls the transform orchestrator and scheduler.
type SyncConfig struct {
	IntervalSec         int  `mapstructure:"interval_sec" yaml:"interval_sec"`
	LeaseTimeoutSec     int  `mapstructure:"lease_timeout_sec" yaml:"lease_timeout_sec"`
	InitialLookbackDays int  `mapstructure:"initial_lookback_days" yaml:"initial_lookback_days"`
	Parallel            bool `mapstructure:"parallel" yaml:"parallel"`
}

// Interval returns the scheduler period.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// LeaseTimeout returns how long a run may hold the running flag before it
// is considered abandoned.
func (c SyncConfig) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutSec) * time.Second
}

// InitialLookback returns the window used when a source never succeeded.
func (c SyncConfig) InitialLookback() time.Duration {
	return time.Duration(c.InitialLookbackDays) * 24 * time.Hour
}

// ResolveConfig toggles auto-creation during transforms.
type ResolveConfig struct {
	AutoCreateIdentities bool `mapstructure:"auto_create_identities" yaml:"auto_create_identities"`
	AutoCreateProjects   bool `mapstructure:"auto_create_projects" yaml:"auto_create_projects"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// LLMConfig holds settings for the insight text generator. The API key is
// read from the keyring or ORGPULSE_LLM_API_KEY, never from this file.
type LLMConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// EmailCollectorConfig points at the IMAP mailbox to collect from.
type EmailCollectorConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
}

// Enabled reports whether enough settings are present to connect.
func (c EmailCollectorConfig) Enabled() bool {
	return c.Host != "" && c.Username != ""
}

// JiraCollectorConfig points at the Jira instance to collect from.
type JiraCollectorConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Email   string `mapstructure:"email" yaml:"email"`
	JQL     string `mapstructure:"jql" yaml:"jql"`
}

func (c JiraCollectorConfig) Enabled() bool {
	return c.BaseURL != ""
}

type CollectorsConfig struct {
	Email EmailCollectorConfig `mapstructure:"email" yaml:"email"`
	Jira  JiraCollectorConfig  `mapstructure:"jira" yaml:"jira"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	OrgID      string           `mapstructure:"org_id" yaml:"org_id"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Resolve    ResolveConfig    `mapstructure:"resolve" yaml:"resolve"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Collectors CollectorsConfig `mapstructure:"collectors" yaml:"collectors"`
}

// DefaultConfigPath returns ~/.config/orgpulse/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "orgpulse", "config.yaml")
}

// DefaultDatabasePath returns the SQLite file used when no DSN is configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "orgpulse.db"
	}
	return filepath.Join(home, ".local", "share", "orgpulse", "orgpulse.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("org_id", "default")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", DefaultDatabasePath())
	v.SetDefault("sync.interval_sec", 300)
	v.SetDefault("sync.lease_timeout_sec", 1800)
	v.SetDefault("sync.initial_lookback_days", 30)
	v.SetDefault("sync.parallel", false)
	v.SetDefault("resolve.auto_create_identities", true)
	v.SetDefault("resolve.auto_create_projects", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("collectors.email.port", 993)
	v.SetDefault("collectors.email.tls", true)
	v.SetDefault("collectors.email.mailbox", "INBOX")
	v.SetDefault("collectors.jira.jql", "updated >= -30d ORDER BY updated ASC")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file yields the defaults. ORGPULSE_* environment variables
// override file values (ORGPULSE_DATABASE_DSN, ORGPULSE_SYNC_PARALLEL, ...).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ORGPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("database.driver must be sqlite or pgx, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Sync.IntervalSec <= 0 {
		return errors.New("sync.interval_sec must be positive")
	}
	if c.Sync.LeaseTimeoutSec <= 0 {
		return errors.New("sync.lease_timeout_sec must be positive")
	}
	if c.Sync.InitialLookbackDays <= 0 {
		return errors.New("sync.initial_lookback_days must be positive")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("org_id", cfg.OrgID)
	v.Set("database", cfg.Database)
	v.Set("sync", cfg.Sync)
	v.Set("resolve", cfg.Resolve)
	v.Set("http", cfg.HTTP)
	v.Set("log", cfg.Log)
	v.Set("llm", cfg.LLM)
	v.Set("collectors", cfg.Collectors)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
