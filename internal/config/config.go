// Package config loads pricestore settings from defaults, an optional YAML
// file, a .env file and PRICESTORE_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tropicaldog17/pricestore/internal/db"
)

const envPrefix = "PRICESTORE"

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Conversion ConversionConfig `mapstructure:"conversion"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	// Pivot is the currency every stored rate is expressed in.
	Pivot string `mapstructure:"pivot"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig locates the historical series files.
type StoreConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	IndexInterval int    `mapstructure:"index_interval"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// IngestionConfig drives the periodic provider fetch.
type IngestionConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	AppendTimeout  time.Duration `mapstructure:"append_timeout"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	Providers      []string      `mapstructure:"providers"` // "fiat", "crypto", "endpoints", "mock"
	FiatAPIBaseURL string        `mapstructure:"fiat_api_base_url"`
	FiatAPIKey     string        `mapstructure:"fiat_api_key"`
	CryptoBaseURL  string        `mapstructure:"crypto_base_url"`
	CryptoAPIKey   string        `mapstructure:"crypto_api_key"`
	// Endpoints configures the "endpoints" provider, one JSON API per asset.
	Endpoints []EndpointConfig `mapstructure:"endpoints"`
}

// EndpointConfig describes a JSON HTTP API quoting a single asset.
// URL and header values may reference ${ENV_VAR}; the URL also accepts {asset},
// {asset_lower}, {pivot}, {pivot_lower} and {date}.
type EndpointConfig struct {
	Asset        string            `mapstructure:"asset"`
	URL          string            `mapstructure:"url"`
	ResponsePath string            `mapstructure:"response_path"` // dot separated, e.g. "rates.XAU"
	Convention   string            `mapstructure:"convention"`    // "pivot_per_asset" (default) or "asset_per_pivot"
	Headers      map[string]string `mapstructure:"headers"`
	AuthType     string            `mapstructure:"auth_type"` // "bearer", "apikey" or empty
	AuthValue    string            `mapstructure:"auth_value"`
}

type ConversionConfig struct {
	// MaxStaleness is the default age limit for a resolved rate; 0 disables the check.
	MaxStaleness time.Duration `mapstructure:"max_staleness"`
}

type LoggingConfig struct {
	Env   string `mapstructure:"env"`   // "production" or "development"
	Level string `mapstructure:"level"` // "debug", "info", "warn", "error"
}

// Load reads configuration. path may be empty, in which case ./config.yaml and
// ./config/config.yaml are tried and a missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Pivot = strings.ToUpper(strings.TrimSpace(cfg.Pivot))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pivot", "USD")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("store.index_interval", 32)

	v.SetDefault("database.driver", db.DriverSQLite)
	v.SetDefault("database.path", "./data/ledger.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "pricestore")
	v.SetDefault("database.password", "pricestore")
	v.SetDefault("database.name", "pricestore")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("ingestion.enabled", false)
	v.SetDefault("ingestion.interval", 24*time.Hour)
	v.SetDefault("ingestion.append_timeout", 5*time.Second)
	v.SetDefault("ingestion.fetch_timeout", 30*time.Second)
	v.SetDefault("ingestion.providers", []string{"fiat", "crypto"})
	v.SetDefault("ingestion.fiat_api_base_url", "")
	v.SetDefault("ingestion.crypto_base_url", "")

	v.SetDefault("conversion.max_staleness", 0)

	v.SetDefault("logging.env", "development")
	v.SetDefault("logging.level", "")
}

// Validate checks required values and known enumerations.
func (c *Config) Validate() error {
	if c.Pivot == "" {
		return errors.New("config: pivot is required")
	}
	if c.Store.DataDir == "" {
		return errors.New("config: store.data_dir is required")
	}
	if c.Store.IndexInterval <= 0 {
		return fmt.Errorf("config: store.index_interval must be positive, got %d", c.Store.IndexInterval)
	}
	switch c.Database.Driver {
	case db.DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite")
		}
	case db.DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("config: database.host and database.name are required for postgres")
		}
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Ingestion.Enabled && c.Ingestion.Interval <= 0 {
		return errors.New("config: ingestion.interval must be positive")
	}
	if c.Ingestion.AppendTimeout <= 0 {
		return errors.New("config: ingestion.append_timeout must be positive")
	}
	for _, p := range c.Ingestion.Providers {
		switch p {
		case "fiat", "crypto", "endpoints", "mock":
		default:
			return fmt.Errorf("config: unknown ingestion provider %q", p)
		}
	}
	for i, e := range c.Ingestion.Endpoints {
		if e.Asset == "" || e.URL == "" {
			return fmt.Errorf("config: ingestion.endpoints[%d] needs asset and url", i)
		}
		switch e.Convention {
		case "", "pivot_per_asset", "asset_per_pivot":
		default:
			return fmt.Errorf("config: ingestion.endpoints[%d]: unknown convention %q", i, e.Convention)
		}
		switch strings.ToLower(e.AuthType) {
		case "", "none", "bearer", "apikey":
		default:
			return fmt.Errorf("config: ingestion.endpoints[%d]: unknown auth_type %q", i, e.AuthType)
		}
	}
	if c.Conversion.MaxStaleness < 0 {
		return errors.New("config: conversion.max_staleness must not be negative")
	}
	return nil
}

// DBConfig converts the database section for db.Connect.
func (c *Config) DBConfig() *db.Config {
	return &db.Config{
		Driver:   c.Database.Driver,
		Path:     c.Database.Path,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Name:     c.Database.Name,
		SSLMode:  c.Database.SSLMode,
	}
}
