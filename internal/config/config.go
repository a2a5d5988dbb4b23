// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`
	SiteHost    string   `mapstructure:"sitehost"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Session settings
	SessionTimeoutSeconds int `mapstructure:"sessiontimeoutseconds"`

	// Real-time aggregator settings
	AggregationIntervalSeconds int `mapstructure:"aggregationintervalseconds"`
	PersistIntervalSeconds     int `mapstructure:"persistintervalseconds"`
	FlushMaxRetries            int `mapstructure:"flushmaxretries"`

	// Reporting settings
	ReportTimeoutSeconds int `mapstructure:"reporttimeoutseconds"`

	// Data retention settings
	RetentionDays int `mapstructure:"retentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "udtweb")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("sitehost", "unitedtacticaldefense.com")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("aggregationintervalseconds", 60)
		v.SetDefault("persistintervalseconds", 300)
		v.SetDefault("flushmaxretries", 3)
		v.SetDefault("reporttimeoutseconds", 30)
		v.SetDefault("retentiondays", 180)

		// Bind environment variables
		v.BindEnv("appname", "UDTWEB_APP_NAME")
		v.BindEnv("appport", "UDTWEB_APP_PORT")
		v.BindEnv("environment", "UDTWEB_ENV")
		v.BindEnv("loglevel", "UDTWEB_LOG_LEVEL")
		v.BindEnv("privatekey", "UDTWEB_PRIVATE_KEY")
		v.BindEnv("sitehost", "UDTWEB_SITE_HOST")
		v.BindEnv("storagepath", "UDTWEB_STORAGE_PATH")
		v.BindEnv("geodbpath", "UDTWEB_GEO_DB_PATH")
		v.BindEnv("logsdir", "UDTWEB_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "UDTWEB_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "UDTWEB_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "UDTWEB_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "UDTWEB_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "UDTWEB_DB_MAX_IDLE_CONNS")
		v.BindEnv("sessiontimeoutseconds", "UDTWEB_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("aggregationintervalseconds", "UDTWEB_AGGREGATION_INTERVAL_SECONDS")
		v.BindEnv("persistintervalseconds", "UDTWEB_PERSIST_INTERVAL_SECONDS")
		v.BindEnv("flushmaxretries", "UDTWEB_FLUSH_MAX_RETRIES")
		v.BindEnv("reporttimeoutseconds", "UDTWEB_REPORT_TIMEOUT_SECONDS")
		v.BindEnv("retentiondays", "UDTWEB_RETENTION_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.AggregationIntervalSeconds <= 0 {
		return fmt.Errorf("invalid aggregation interval: %d", c.AggregationIntervalSeconds)
	}
	if c.PersistIntervalSeconds <= 0 {
		return fmt.Errorf("invalid persist interval: %d", c.PersistIntervalSeconds)
	}
	if c.FlushMaxRetries < 0 {
		return fmt.Errorf("invalid flush retry limit: %d", c.FlushMaxRetries)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
// This service serves no static assets; the marketing site hosts its own.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTimeout returns the visitor session timeout in seconds.
// Attribution ordering and bounce-rate computations use the same window.
func (c *Config) GetSessionTimeout() int {
	return c.SessionTimeoutSeconds
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for in-memory SQLite stability)
// - Development/Production: 10 (allows concurrent reads for parallel report queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
