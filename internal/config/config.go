package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Lobstr LobstrConfig `yaml:"lobstr" mapstructure:"lobstr"`
	NoCRM  NoCRMConfig  `yaml:"nocrm" mapstructure:"nocrm"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LobstrConfig holds scraping API settings.
type LobstrConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NoCRMConfig holds CRM API settings.
type NoCRMConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserEmail string `yaml:"user_email" mapstructure:"user_email"`
}

// SyncConfig configures the migration engine.
type SyncConfig struct {
	// Concurrency bounds how many clusters migrate in parallel.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// MaxRunsPerCycle caps how many unprocessed runs a single cluster
	// migration absorbs per coordinator run. 0 means unlimited.
	MaxRunsPerCycle int `yaml:"max_runs_per_cycle" mapstructure:"max_runs_per_cycle"`
	// DuplicateScanConcurrency bounds parallel phone-group batches in the
	// cross-list duplicate scan.
	DuplicateScanConcurrency int `yaml:"duplicate_scan_concurrency" mapstructure:"duplicate_scan_concurrency"`
}

// ServerConfig configures the trigger/status HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("lobstr.base_url", "https://api.lobstr.io")
	v.SetDefault("nocrm.base_url", "https://capitalead26.nocrm.io")
	v.SetDefault("sync.concurrency", 1)
	v.SetDefault("sync.max_runs_per_cycle", 3)
	v.SetDefault("sync.duplicate_scan_concurrency", 4)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required to run a migration are present.
func (c *Config) Validate() error {
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required (set LEADSYNC_STORE_DATABASE_URL)")
	}
	if c.Lobstr.Token == "" {
		return eris.New("config: lobstr.token is required")
	}
	if c.NoCRM.APIKey == "" {
		return eris.New("config: nocrm.api_key is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
