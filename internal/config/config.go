// Package config provides configuration management for the trading journal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig `mapstructure:"database"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Importer    ImporterConfig `mapstructure:"importer"`
	Server      ServerConfig   `mapstructure:"server"`
	Sync        SyncConfig     `mapstructure:"sync"`
	Security    SecurityConfig `mapstructure:"security"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// DatabaseConfig holds the document database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds object storage configuration for chart images.
type StorageConfig struct {
	Driver       string `mapstructure:"driver"` // "file", "s3"
	Dir          string `mapstructure:"dir"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// CacheConfig holds the local image cache configuration.
type CacheConfig struct {
	Path            string        `mapstructure:"path"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	JanitorSchedule string        `mapstructure:"janitor_schedule"`
}

// AuthConfig holds identity provider configuration.
type AuthConfig struct {
	RequireVerified bool          `mapstructure:"require_verified"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
}

// ImporterConfig holds the screenshot import service configuration.
type ImporterConfig struct {
	URL     string        `mapstructure:"url"`
	Rate    float64       `mapstructure:"rate"` // requests per second
	Burst   int           `mapstructure:"burst"`
	Timeout time.Duration `mapstructure:"timeout"`

	// BreakerThreshold consecutive failed imports stop calls for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	DevMode        bool     `mapstructure:"dev_mode"`
}

// SyncConfig holds trade subscription configuration.
type SyncConfig struct {
	FirstSnapshotTimeout time.Duration `mapstructure:"first_snapshot_timeout"`
}

// SecurityConfig holds access control and audit configuration.
type SecurityConfig struct {
	ReadOnly bool   `mapstructure:"read_only"`
	Audit    bool   `mapstructure:"audit"`
	AuditDir string `mapstructure:"audit_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds secrets for remote collaborators.
type Credentials struct {
	S3       S3Credentials       `mapstructure:"s3"`
	Importer ImporterCredentials `mapstructure:"importer"`
}

// S3Credentials holds static S3 credentials. Empty values fall back to the
// default AWS credential chain.
type S3Credentials struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// ImporterCredentials holds the import service API key.
type ImporterCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trade-journal"
	}
	return filepath.Join(home, ".config", "trade-journal")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files are
// created from templates and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "journal.db")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "images")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("cache.path", "image-cache.db")
	v.SetDefault("cache.max_age", "720h")
	v.SetDefault("cache.janitor_schedule", "@every 1h")
	v.SetDefault("auth.require_verified", false)
	v.SetDefault("auth.session_ttl", "720h")
	v.SetDefault("importer.rate", 1.0)
	v.SetDefault("importer.burst", 2)
	v.SetDefault("importer.timeout", "60s")
	v.SetDefault("importer.breaker_threshold", 5)
	v.SetDefault("importer.breaker_cooldown", "30s")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("sync.first_snapshot_timeout", "10s")
	v.SetDefault("security.read_only", false)
	v.SetDefault("security.audit", true)
	v.SetDefault("security.audit_dir", "audit")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join("logs", "journal.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JOURNAL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("JOURNAL_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("JOURNAL_S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Credentials.S3.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Credentials.S3.SecretAccessKey = v
	}
	if v := os.Getenv("JOURNAL_IMPORTER_URL"); v != "" {
		cfg.Importer.URL = v
	}
	if v := os.Getenv("JOURNAL_IMPORTER_API_KEY"); v != "" {
		cfg.Credentials.Importer.APIKey = v
	}
	if v := os.Getenv("JOURNAL_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("JOURNAL_READ_ONLY"); v != "" {
		cfg.Security.ReadOnly = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("JOURNAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// resolvePaths anchors relative file locations at the config directory.
func (c *Config) resolvePaths() {
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.Dir, p)
	}
	c.Database.Path = anchor(c.Database.Path)
	c.Storage.Dir = anchor(c.Storage.Dir)
	c.Cache.Path = anchor(c.Cache.Path)
	c.Logging.FilePath = anchor(c.Logging.FilePath)
	c.Security.AuditDir = anchor(c.Security.AuditDir)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file driver")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be 'file' or 's3')", c.Storage.Driver)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age must be non-negative")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.Importer.Rate <= 0 {
		return fmt.Errorf("importer.rate must be positive")
	}
	if c.Importer.Burst < 1 {
		return fmt.Errorf("importer.burst must be at least 1")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// SessionFile returns the path of the CLI's stored session token.
func (c *Config) SessionFile() string {
	return filepath.Join(c.Dir, "session")
}
