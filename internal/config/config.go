package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config represents the trigger service configuration
type Config struct {
	Server        ServerConfig   `yaml:"server"`
	Auth          AuthConfig     `yaml:"auth"`
	Vertex        VertexConfig   `yaml:"vertex"`
	Registry      RegistryConfig `yaml:"registry"`
	Polling       PollingConfig  `yaml:"polling"`
	Store         StoreConfig    `yaml:"store"`
	Logging       LoggingConfig  `yaml:"logging"`
	PipelinesFile string         `yaml:"pipelines_file"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // must exceed the polling budget
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	APIKeys []APIKey `yaml:"api_keys"`
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// VertexConfig contains Vertex AI connection settings
type VertexConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	CredentialsFile    string        `yaml:"credentials_file"`
	BearerToken        string        `yaml:"bearer_token"` // Optional: use a pre-issued token
	TokenRefreshMargin time.Duration `yaml:"token_refresh_margin"`
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
}

// RegistryConfig contains template registry settings
type RegistryConfig struct {
	Host string `yaml:"host"`
}

// PollingConfig bounds the post-submission status loop
type PollingConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// StoreConfig selects where submission records are kept
type StoreConfig struct {
	Kind          string        `yaml:"kind"` // memory or redis
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// Load reads the optional configuration file, applies environment overrides
// and fills in defaults. An empty or missing path means environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			// Expand environment variables in the config
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs error
	if c.Store.Kind != "memory" && c.Store.Kind != "redis" {
		errs = multierr.Append(errs, fmt.Errorf("unsupported store kind: %s", c.Store.Kind))
	}
	if c.Store.Kind == "redis" && c.Store.RedisAddr == "" {
		errs = multierr.Append(errs, fmt.Errorf("store.redis_addr is required for the redis store"))
	}
	if c.Polling.MaxAttempts < 1 {
		errs = multierr.Append(errs, fmt.Errorf("polling.max_attempts must be at least 1"))
	}
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" {
			errs = multierr.Append(errs, fmt.Errorf("api key at index %d has no key", i))
		}
	}
	return errs
}

func applyEnv(cfg *Config) error {
	var errs error
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = i
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setInt("PORT", &cfg.Server.Port)
	setDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	if v, ok := os.LookupEnv("API_KEYS"); ok {
		keys, err := ParseAPIKeys(v)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			cfg.Auth.APIKeys = keys
		}
	}

	setString("VERTEX_ENDPOINT", &cfg.Vertex.Endpoint)
	setString("GOOGLE_APPLICATION_CREDENTIALS", &cfg.Vertex.CredentialsFile)
	setString("VERTEX_BEARER_TOKEN", &cfg.Vertex.BearerToken)
	setDuration("VERTEX_TOKEN_REFRESH_MARGIN", &cfg.Vertex.TokenRefreshMargin)
	setDuration("VERTEX_HTTP_TIMEOUT", &cfg.Vertex.HTTPTimeout)
	setFloat("VERTEX_REQUESTS_PER_SECOND", &cfg.Vertex.RequestsPerSecond)

	setString("REGISTRY_HOST", &cfg.Registry.Host)

	setInt("POLL_MAX_ATTEMPTS", &cfg.Polling.MaxAttempts)
	setDuration("POLL_INTERVAL", &cfg.Polling.Interval)

	setString("STORE_KIND", &cfg.Store.Kind)
	setString("REDIS_ADDR", &cfg.Store.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.Store.RedisPassword)
	setInt("REDIS_DB", &cfg.Store.RedisDB)
	setDuration("STORE_TTL", &cfg.Store.TTL)

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)

	setString("PIPELINES_FILE", &cfg.PipelinesFile)

	return errs
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 180 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 150 * time.Second
	}
	if cfg.Vertex.TokenRefreshMargin == 0 {
		cfg.Vertex.TokenRefreshMargin = 5 * time.Minute
	}
	if cfg.Vertex.HTTPTimeout == 0 {
		cfg.Vertex.HTTPTimeout = 30 * time.Second
	}
	if cfg.Vertex.RequestsPerSecond == 0 {
		cfg.Vertex.RequestsPerSecond = 10
	}
	if cfg.Registry.Host == "" {
		cfg.Registry.Host = "kfp.pkg.dev"
	}
	if cfg.Polling.MaxAttempts == 0 {
		cfg.Polling.MaxAttempts = 6
	}
	if cfg.Polling.Interval == 0 {
		cfg.Polling.Interval = 20 * time.Second
	}
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = "memory"
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = 7 * 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.PipelinesFile == "" {
		cfg.PipelinesFile = "configs/pipelines.yaml"
	}
}

// ParseAPIKeys parses "name:key,name:key"
func ParseAPIKeys(value string) ([]APIKey, error) {
	var keys []APIKey
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, key, ok := strings.Cut(entry, ":")
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry %q, expected name:key", entry)
		}
		keys = append(keys, APIKey{Name: name, Key: key})
	}
	return keys, nil
}
