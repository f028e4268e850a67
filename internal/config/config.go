// Package config provides Viper-based configuration loading for the combat server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Backend is the document store backend: "redis" or "postgres".
	Backend string `mapstructure:"backend"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// OracleConfig holds settings for the narration model client.
type OracleConfig struct {
	// APIKey is the Anthropic API key. Usually supplied via ARBITER_ORACLE_API_KEY.
	APIKey string `mapstructure:"api_key"`
	// Model is the model identifier used for narration and validation calls.
	Model string `mapstructure:"model"`
	// MaxTokens caps the length of a single model response.
	MaxTokens int `mapstructure:"max_tokens"`
	// RequestTimeout bounds a single model call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CombatConfig holds turn orchestration tuning parameters.
type CombatConfig struct {
	// MaxRetries is the number of narration attempts per turn before the turn fails.
	MaxRetries int `mapstructure:"max_retries"`
	// ValidationRetries bounds the validator's own call attempts per narration attempt.
	ValidationRetries int `mapstructure:"validation_retries"`
	// BaseTemperature is the sampling temperature for the first attempt of a turn.
	BaseTemperature float64 `mapstructure:"base_temperature"`
	// MinTemperature is the floor the retry schedule never goes below.
	MinTemperature float64 `mapstructure:"min_temperature"`
	// TemperatureDecay is subtracted from the temperature on each failed attempt.
	TemperatureDecay float64 `mapstructure:"temperature_decay"`
	// HistoryWindow is the number of trailing transcript messages shown in state snapshots.
	HistoryWindow int `mapstructure:"history_window"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateStore(c.Store); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Store.Backend == "redis" {
		if err := validateRedis(c.Redis); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Store.Backend == "postgres" {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateOracle(c.Oracle); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCombat(c.Combat); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStore(s StoreConfig) error {
	validBackends := map[string]bool{"redis": true, "postgres": true}
	if !validBackends[s.Backend] {
		return fmt.Errorf("store.backend must be one of [redis, postgres], got %q", s.Backend)
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "redis.addr must not be empty")
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.PoolSize < 1 {
		errs = append(errs, fmt.Sprintf("redis.pool_size must be >= 1, got %d", r.PoolSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateOracle(o OracleConfig) error {
	var errs []string
	if o.Model == "" {
		errs = append(errs, "oracle.model must not be empty")
	}
	if o.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("oracle.max_tokens must be >= 1, got %d", o.MaxTokens))
	}
	if o.RequestTimeout < 0 {
		errs = append(errs, "oracle.request_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Sprintf("combat.max_retries must be >= 1, got %d", c.MaxRetries))
	}
	if c.ValidationRetries < 1 {
		errs = append(errs, fmt.Sprintf("combat.validation_retries must be >= 1, got %d", c.ValidationRetries))
	}
	if c.BaseTemperature < 0 || c.BaseTemperature > 1 {
		errs = append(errs, fmt.Sprintf("combat.base_temperature must be 0-1, got %g", c.BaseTemperature))
	}
	if c.MinTemperature < 0 || c.MinTemperature > c.BaseTemperature {
		errs = append(errs, fmt.Sprintf("combat.min_temperature must be between 0 and combat.base_temperature, got %g", c.MinTemperature))
	}
	if c.TemperatureDecay < 0 {
		errs = append(errs, "combat.temperature_decay must not be negative")
	}
	if c.HistoryWindow < 1 {
		errs = append(errs, fmt.Sprintf("combat.history_window must be >= 1, got %d", c.HistoryWindow))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ARBITER_ prefix
	v.SetEnvPrefix("ARBITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "redis")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arbiter")
	v.SetDefault("database.password", "arbiter")
	v.SetDefault("database.name", "arbiter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("oracle.model", "claude-sonnet-4-5")
	v.SetDefault("oracle.max_tokens", 4096)
	v.SetDefault("oracle.request_timeout", "2m")

	v.SetDefault("combat.max_retries", 5)
	v.SetDefault("combat.validation_retries", 3)
	v.SetDefault("combat.base_temperature", 0.8)
	v.SetDefault("combat.min_temperature", 0.2)
	v.SetDefault("combat.temperature_decay", 0.15)
	v.SetDefault("combat.history_window", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
