package trigger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/lei/pipeline-trigger/internal/api"
	"github.com/lei/pipeline-trigger/internal/config"
	"github.com/lei/pipeline-trigger/internal/models"
	"github.com/lei/pipeline-trigger/internal/provider"
	"github.com/lei/pipeline-trigger/internal/provider/vertex"
	"github.com/lei/pipeline-trigger/internal/service"
	"github.com/lei/pipeline-trigger/internal/store"
	"github.com/lei/pipeline-trigger/pkg/logger"
	"go.uber.org/multierr"
)

// Trigger represents a pipeline trigger instance that can be embedded in applications
type Trigger struct {
	config  *Config
	service *service.Service
	store   store.Store
	router  http.Handler
	server  *http.Server
	logger  *logger.Logger
}

// Config holds the configuration for the Trigger
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication configuration; no keys leaves the API open
	Auth AuthConfig

	// Provider configuration (currently supports Vertex AI)
	Provider ProviderConfig

	// Registry host used to compose template paths
	RegistryHost string

	// Polling bounds the wait for a submitted job to start
	Polling PollingConfig

	// Store configuration for submission records
	Store StoreConfig

	// Pipelines is the optional catalog of named pipelines
	Pipelines []*models.Pipeline

	// Logger configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// APIKeys is a list of API keys for authentication
	APIKeys []APIKey
}

// APIKey represents an API key for authentication
type APIKey struct {
	Name string
	Key  string
}

// ProviderConfig holds execution service configuration
type ProviderConfig struct {
	Kind string // Currently only "vertex" is supported

	// Vertex-specific configuration
	Vertex *VertexConfig
}

// VertexConfig holds Vertex AI specific configuration
type VertexConfig struct {
	Endpoint           string
	CredentialsFile    string
	BearerToken        string
	TokenRefreshMargin time.Duration
	HTTPTimeout        time.Duration
	RequestsPerSecond  float64
}

// PollingConfig holds the status polling budget
type PollingConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// StoreConfig holds submission store configuration
type StoreConfig struct {
	Kind          string // memory or redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// New creates a new Trigger instance with the provided configuration
func New(cfg *Config) (*Trigger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	// Initialize logger
	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// Initialize provider
	var prov provider.Provider

	switch cfg.Provider.Kind {
	case "vertex":
		if cfg.Provider.Vertex == nil {
			return nil, fmt.Errorf("vertex configuration required when provider kind is 'vertex'")
		}
		providerCfg := &vertex.Config{
			Endpoint:           cfg.Provider.Vertex.Endpoint,
			CredentialsFile:    cfg.Provider.Vertex.CredentialsFile,
			BearerToken:        cfg.Provider.Vertex.BearerToken,
			TokenRefreshMargin: cfg.Provider.Vertex.TokenRefreshMargin,
			HTTPTimeout:        cfg.Provider.Vertex.HTTPTimeout,
			RequestsPerSecond:  cfg.Provider.Vertex.RequestsPerSecond,
		}
		adapter, err := vertex.NewAdapter(context.Background(), providerCfg, appLogger)
		if err != nil {
			return nil, fmt.Errorf("initialize vertex provider: %w", err)
		}
		prov = adapter
		appLogger.Info("initialized vertex provider", "endpoint", cfg.Provider.Vertex.Endpoint)

	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", cfg.Provider.Kind)
	}

	// Initialize submission store
	var st store.Store
	switch cfg.Store.Kind {
	case "", "memory":
		st = store.NewMemory()
	case "redis":
		redisStore, err := store.NewRedis(store.RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			TTL:      cfg.Store.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize redis store: %w", err)
		}
		st = redisStore
		appLogger.Info("initialized redis store", "addr", cfg.Store.RedisAddr, "ttl", cfg.Store.TTL.String())
	default:
		return nil, fmt.Errorf("unsupported store kind: %s", cfg.Store.Kind)
	}

	// Initialize service layer
	svc := service.NewService(service.Config{
		RegistryHost: cfg.RegistryHost,
		MaxAttempts:  cfg.Polling.MaxAttempts,
		PollInterval: cfg.Polling.Interval,
	}, cfg.Pipelines, prov, st, appLogger)

	if cfg.Server.RequestTimeout > 0 && cfg.Server.RequestTimeout <= svc.PollBudget() {
		appLogger.Warn("request timeout does not cover the polling budget",
			"request_timeout", cfg.Server.RequestTimeout.String(),
			"poll_budget", svc.PollBudget().String())
	}

	// Initialize API layer
	handlers := api.NewHandlers(svc)

	// Convert APIKeys to internal config format
	configAPIKeys := make([]config.APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		configAPIKeys[i] = config.APIKey{
			Name: key.Name,
			Key:  key.Key,
		}
	}
	authMiddleware := api.NewAuthMiddleware(configAPIKeys)
	if !authMiddleware.Enabled() {
		appLogger.Warn("no api keys configured, /v1 is unauthenticated")
	}
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	router := api.NewRouter(handlers, authMiddleware, loggingMiddleware, cfg.Server.RequestTimeout)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	appLogger.Info("pipeline catalog loaded", "count", len(cfg.Pipelines))

	return &Trigger{
		config:  cfg,
		service: svc,
		store:   st,
		router:  router,
		server:  srv,
		logger:  appLogger,
	}, nil
}

// Start starts the HTTP server
// This is a blocking call that will run until the context is canceled or an error occurs
func (t *Trigger) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		t.logger.Info("starting http server", "port", t.config.Server.Port)
		serverErrors <- t.server.ListenAndServe()
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return multierr.Append(fmt.Errorf("server error: %w", err), t.Close())
		}
		return t.Close()

	case <-ctx.Done():
		t.logger.Info("shutdown signal received")

		// Graceful shutdown; in-flight triggers may still be polling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var errs error
		if err := t.server.Shutdown(shutdownCtx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
			errs = multierr.Append(errs, t.server.Close())
		} else {
			t.logger.Info("server stopped gracefully")
		}
		return multierr.Append(errs, t.Close())
	}
}

// Close releases the submission store and flushes the logger
func (t *Trigger) Close() error {
	var errs error
	if err := t.store.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close store: %w", err))
	}
	// Sync on stdout commonly reports EINVAL; it is not a shutdown failure
	_ = t.logger.Sync()
	return errs
}

// Handler returns the http.Handler for the trigger
// Use this if you want to integrate the trigger into an existing HTTP server
func (t *Trigger) Handler() http.Handler {
	return t.router
}

// Service returns the underlying service layer
// Use this for direct programmatic access to trigger functionality
func (t *Trigger) Service() *service.Service {
	return t.service
}

// NewFromEnv creates a Trigger instance from environment variables and an
// optional config file. A missing pipeline catalog file leaves the catalog empty.
func NewFromEnv(configFile string) (*Trigger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pipelines, err := config.LoadPipelines(cfg.PipelinesFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load pipelines: %w", err)
	}

	return New(FromConfig(cfg, pipelines))
}

// FromConfig converts a loaded configuration into a Trigger configuration
func FromConfig(cfg *config.Config, pipelines []*models.Pipeline) *Config {
	apiKeys := make([]APIKey, len(cfg.Auth.APIKeys))
	for i, key := range cfg.Auth.APIKeys {
		apiKeys[i] = APIKey{
			Name: key.Name,
			Key:  key.Key,
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:           cfg.Server.Port,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			RequestTimeout: cfg.Server.RequestTimeout,
		},
		Auth: AuthConfig{
			APIKeys: apiKeys,
		},
		Provider: ProviderConfig{
			Kind: "vertex",
			Vertex: &VertexConfig{
				Endpoint:           cfg.Vertex.Endpoint,
				CredentialsFile:    cfg.Vertex.CredentialsFile,
				BearerToken:        cfg.Vertex.BearerToken,
				TokenRefreshMargin: cfg.Vertex.TokenRefreshMargin,
				HTTPTimeout:        cfg.Vertex.HTTPTimeout,
				RequestsPerSecond:  cfg.Vertex.RequestsPerSecond,
			},
		},
		RegistryHost: cfg.Registry.Host,
		Polling: PollingConfig{
			MaxAttempts: cfg.Polling.MaxAttempts,
			Interval:    cfg.Polling.Interval,
		},
		Store: StoreConfig{
			Kind:          cfg.Store.Kind,
			RedisAddr:     cfg.Store.RedisAddr,
			RedisPassword: cfg.Store.RedisPassword,
			RedisDB:       cfg.Store.RedisDB,
			TTL:           cfg.Store.TTL,
		},
		Pipelines: pipelines,
		Logging: LoggingConfig{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	}
}
