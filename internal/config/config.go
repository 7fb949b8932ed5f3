// Package config loads the gateway configuration: defaults, then an optional
// YAML file, then environment overrides. It is resolved once at start and
// passed explicitly to every component.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/koustreak/dac/internal/database"
	"github.com/koustreak/dac/internal/errs"
	"github.com/koustreak/dac/internal/filestore"
	"github.com/koustreak/dac/internal/logger"
	"go.yaml.in/yaml/v3"
)

// DefaultUpstreamURL is the backend API address used when none is configured.
const DefaultUpstreamURL = "http://localhost:8000"

// Config holds all configuration for the gateway process.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig describes the catalog used when the upstream cannot report
// database status. An empty DSN disables the local fallback.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// StorageConfig describes the bucket holding backup archives.
type StorageConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Endpoint   string        `yaml:"endpoint"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	UseSSL     bool          `yaml:"use_ssl"`
	Region     string        `yaml:"region"`
	Bucket     string        `yaml:"bucket"`
	Prefix     string        `yaml:"prefix"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":3000",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL: DefaultUpstreamURL,
			Timeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          string(database.DriverPostgres),
			MaxConns:        10,
			ConnectTimeout:  10 * time.Second,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Bucket: "dac-backups",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment env win over the file. DAC_API_URL takes
// precedence over the front end's NEXT_PUBLIC_DAC_API_URL.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DAC_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("NEXT_PUBLIC_DAC_API_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("DAC_API_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("DAC_DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DAC_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DAC_DATABASE_SCHEMA"); v != "" {
		cfg.Database.Schema = v
	}
	if v := os.Getenv("DAC_STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
		cfg.Storage.Enabled = true
	}
	if v := os.Getenv("DAC_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("DAC_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("DAC_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("DAC_STORAGE_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Storage.UseSSL = b
		}
	}
	if v := os.Getenv("DAC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DAC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return invalid("server.listen_addr is required")
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fmt.Sprintf("upstream.base_url %q is not an absolute http(s) URL", c.Upstream.BaseURL))
	}

	switch database.Driver(c.Database.Driver) {
	case database.DriverPostgres, database.DriverMySQL:
	default:
		return invalid(fmt.Sprintf("database.driver %q is not one of postgres, mysql", c.Database.Driver))
	}

	if c.Storage.Enabled && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return invalid("storage.endpoint and storage.bucket are required when storage is enabled")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid(fmt.Sprintf("log.format %q is not one of json, console", c.Log.Format))
	}
	return nil
}

// DatabaseEnabled reports whether a catalog is configured for the local
// status fallback.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.DSN != ""
}

// DatabaseConfig converts the catalog section for the database drivers.
func (d DatabaseConfig) DatabaseConfig() *database.Config {
	cfg := database.DefaultConfig(d.DSN)
	cfg.Driver = database.Driver(d.Driver)
	cfg.MaxConns = d.MaxConns
	cfg.MinConns = d.MinConns
	cfg.ConnectTimeout = d.ConnectTimeout
	cfg.MaxConnLifetime = d.MaxConnLifetime
	cfg.MaxConnIdleTime = d.MaxConnIdleTime
	return cfg
}

// FilestoreConfig converts the storage section for the filestore drivers.
func (s StorageConfig) FilestoreConfig() *filestore.Config {
	cfg := filestore.DefaultConfig(s.Endpoint, s.AccessKey, s.SecretKey)
	cfg.UseSSL = s.UseSSL
	cfg.Region = s.Region
	cfg.DefaultBucket = s.Bucket
	return cfg
}

// LoggerConfig converts the log section, keeping logger defaults for the
// remaining fields.
func (l LogConfig) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	return cfg
}

func invalid(msg string) error {
	return errs.New(errs.ErrKindInvalidInput, msg)
}
