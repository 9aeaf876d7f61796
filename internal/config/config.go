package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FACELOG_"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Matching MatchingConfig `yaml:"matching"`
	Query    QueryConfig    `yaml:"query"`
	Live     LiveConfig     `yaml:"live"`
	Legacy   LegacyConfig   `yaml:"legacy"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig: an empty URL disables queued ingestion and the live relay.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MatchingConfig.Threshold is the Euclidean distance below which a detection
// is attributed to an existing identity.
type MatchingConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type QueryConfig struct {
	TimelineTTL time.Duration `yaml:"timeline_ttl"`
}

type LiveConfig struct {
	ClientBuffer int `yaml:"client_buffer"`
}

// LegacyConfig points at the MySQL database read by `facectl import-legacy`.
type LegacyConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file, then a .env file in the working
// directory if present, then FACELOG_* environment overrides. An empty
// path skips the YAML step.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Matching.Threshold <= 0 {
		return fmt.Errorf("matching.threshold must be positive, got %v", c.Matching.Threshold)
	}
	if c.Live.ClientBuffer < 1 {
		return fmt.Errorf("live.client_buffer must be at least 1, got %d", c.Live.ClientBuffer)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "facelog"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "facelog"
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.75
	}
	if cfg.Query.TimelineTTL == 0 {
		cfg.Query.TimelineTTL = 30 * time.Second
	}
	if cfg.Live.ClientBuffer == 0 {
		cfg.Live.ClientBuffer = 64
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := getenv("API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := getenv("MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := getenv("MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matching.Threshold = f
		}
	}
	if v := getenv("TIMELINE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.TimelineTTL = d
		}
	}
	if v := getenv("LIVE_CLIENT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Live.ClientBuffer = n
		}
	}
	if v := getenv("LEGACY_DSN"); v != "" {
		cfg.Legacy.DSN = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}
