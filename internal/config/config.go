// Package config loads claimflow settings from file, environment and defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
)

// EnvPrefix is prepended to every environment override, e.g.
// CLAIMFLOW_STORAGE_DRIVER for storage.driver.
const EnvPrefix = "CLAIMFLOW"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// Config represents the complete claimflow configuration.
type Config struct {
	Stealing    domainClaims.WorkStealingConfig `mapstructure:"stealing" yaml:"stealing"`
	LoadBalance domainClaims.LoadBalanceConfig  `mapstructure:"loadbalance" yaml:"loadbalance"`
	Storage     StorageConfig                   `mapstructure:"storage" yaml:"storage"`
	Events      EventsConfig                    `mapstructure:"events" yaml:"events"`
	Logging     LoggingConfig                   `mapstructure:"logging" yaml:"logging"`
	Maintenance MaintenanceConfig               `mapstructure:"maintenance" yaml:"maintenance"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is one of memory, sqlite, postgres or pgx.
	Driver string `mapstructure:"driver" yaml:"driver"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`
	// DSN is the Postgres connection string for the postgres and pgx drivers.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// EventsConfig controls the in-process event bus.
type EventsConfig struct {
	HistorySize int `mapstructure:"historySize" yaml:"historySize"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level"`
	// Dir receives claimflow.log; empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MaintenanceConfig drives the periodic sweeps run by `claimflow maintain`.
type MaintenanceConfig struct {
	IntervalSeconds    int  `mapstructure:"intervalSeconds" yaml:"intervalSeconds"`
	ExpireAfterMinutes int  `mapstructure:"expireAfterMinutes" yaml:"expireAfterMinutes"`
	Rebalance          bool `mapstructure:"rebalance" yaml:"rebalance"`
}

// Interval returns the sweep interval as a time.Duration.
func (m MaintenanceConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// ExpireAfter returns the idle age after which active claims expire; zero
// disables expiry.
func (m MaintenanceConfig) ExpireAfter() time.Duration {
	return time.Duration(m.ExpireAfterMinutes) * time.Minute
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Stealing:    domainClaims.DefaultWorkStealingConfig(),
		LoadBalance: domainClaims.DefaultLoadBalanceConfig(),
		Storage: StorageConfig{
			Driver: DriverMemory,
		},
		Events: EventsConfig{
			HistorySize: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Maintenance: MaintenanceConfig{
			IntervalSeconds:    60,
			ExpireAfterMinutes: 24 * 60,
			Rebalance:          true,
		},
	}
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("stealing.staleThresholdMinutes", d.Stealing.StaleThresholdMinutes)
	v.SetDefault("stealing.blockedThresholdMinutes", d.Stealing.BlockedThresholdMinutes)
	v.SetDefault("stealing.gracePeriodMinutes", d.Stealing.GracePeriodMinutes)
	v.SetDefault("stealing.minProgressToProtect", d.Stealing.MinProgressToProtect)
	v.SetDefault("stealing.overloadThreshold", d.Stealing.OverloadThreshold)
	v.SetDefault("stealing.contestWindowMinutes", d.Stealing.ContestWindowMinutes)
	v.SetDefault("stealing.allowCrossTypeSteal", d.Stealing.AllowCrossTypeSteal)
	v.SetDefault("stealing.crossTypeStealRules", d.Stealing.CrossTypeStealRules)

	v.SetDefault("loadbalance.overloadThreshold", d.LoadBalance.OverloadThreshold)
	v.SetDefault("loadbalance.underloadThreshold", d.LoadBalance.UnderloadThreshold)
	v.SetDefault("loadbalance.rebalanceThreshold", d.LoadBalance.RebalanceThreshold)
	v.SetDefault("loadbalance.maxMovableProgress", d.LoadBalance.MaxMovableProgress)
	v.SetDefault("loadbalance.maxMovesPerRun", d.LoadBalance.MaxMovesPerRun)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.dsn", d.Storage.DSN)

	v.SetDefault("events.historySize", d.Events.HistorySize)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)

	v.SetDefault("maintenance.intervalSeconds", d.Maintenance.IntervalSeconds)
	v.SetDefault("maintenance.expireAfterMinutes", d.Maintenance.ExpireAfterMinutes)
	v.SetDefault("maintenance.rebalance", d.Maintenance.Rebalance)
}

// NewViper returns a viper instance with defaults, CLAIMFLOW_ environment
// overrides and either cfgFile or the standard search paths configured. The
// file is read if present; a missing default file is not an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, err
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Watch reloads the configuration whenever the backing file changes and
// hands the result to onChange. Invalid edits are reported through the error
// argument and leave the caller's current config in place.
func Watch(v *viper.Viper, onChange func(*Config, error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(Load(v))
	})
	v.WatchConfig()
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "claimflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claimflow"
	}
	return filepath.Join(home, ".config", "claimflow")
}

// ConfigFile returns the path to the default config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
