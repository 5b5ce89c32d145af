package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Identity      IdentityConfig
	Stripe        StripeConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes and scraping)
	HealthPort string

	// TrustProxyHeaders keys rate limits on X-Forwarded-For instead of the socket peer
	TrustProxyHeaders bool
	CORSOrigins       []string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig is only required when the rate limiter runs on redis
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// RateLimitConfig holds the two admission budgets
type RateLimitConfig struct {
	Backend       string // memory or redis
	GeneralLimit  int
	GeneralWindow time.Duration
	AuthLimit     int
	AuthWindow    time.Duration
	MaxKeys       int
}

// IdentityConfig selects and configures the bearer token verifier
type IdentityConfig struct {
	// Mode is one of: user_endpoint, oidc_idtoken, oidc_userinfo
	Mode           string
	BaseURL        string
	AnonKey        string
	Issuer         string
	ClientID       string
	RequestTimeout time.Duration
}

// StripeConfig holds payment provider credentials
type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	RequestTimeout time.Duration
}

// BillingConfig holds billing feature settings
type BillingConfig struct {
	PlanCatalogFile    string
	WatchPlanCatalog   bool
	ReconcileSchedule  string
	ReconcileBatchSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// Load reads an optional .env file, then builds the configuration from the
// environment and validates it. Variables already set in the environment
// take precedence over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		RateLimit:     loadRateLimitConfig(),
		Identity:      loadIdentityConfig(),
		Stripe:        loadStripeConfig(),
		Billing:       loadBillingConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:              getEnv("FINANCE_HOST", "0.0.0.0"),
		Port:              getEnv("FINANCE_PORT", "3001"),
		ReadTimeout:       getEnvDuration("FINANCE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getEnvDuration("FINANCE_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getEnvDuration("FINANCE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getEnvDuration("FINANCE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:        getEnv("FINANCE_HEALTH_PORT", "9090"),
		TrustProxyHeaders: getEnvBool("FINANCE_TRUST_PROXY_HEADERS", false),
		CORSOrigins:       getEnvList("FINANCE_CORS_ORIGINS", nil),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("FINANCE_DATABASE_URL", getEnv("DATABASE_URL", "")),
		MaxOpenConns:    getEnvInt("FINANCE_DATABASE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("FINANCE_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("FINANCE_DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:     getEnvBool("FINANCE_DATABASE_AUTO_MIGRATE", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("FINANCE_REDIS_URL", ""),
		Password: getEnv("FINANCE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("FINANCE_REDIS_DB", 0),
		PoolSize: getEnvInt("FINANCE_REDIS_POOL_SIZE", 10),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Backend:       strings.ToLower(getEnv("FINANCE_RATE_LIMIT_BACKEND", "memory")),
		GeneralLimit:  getEnvInt("FINANCE_RATE_LIMIT_GENERAL", 100),
		GeneralWindow: getEnvDuration("FINANCE_RATE_LIMIT_GENERAL_WINDOW", time.Minute),
		AuthLimit:     getEnvInt("FINANCE_RATE_LIMIT_AUTH", 5),
		AuthWindow:    getEnvDuration("FINANCE_RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
		MaxKeys:       getEnvInt("FINANCE_RATE_LIMIT_MAX_KEYS", 100000),
	}
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Mode:           strings.ToLower(getEnv("FINANCE_IDENTITY_MODE", "user_endpoint")),
		BaseURL:        strings.TrimRight(getEnv("FINANCE_IDENTITY_URL", getEnv("SUPABASE_URL", "")), "/"),
		AnonKey:        getEnv("FINANCE_IDENTITY_ANON_KEY", getEnv("SUPABASE_ANON_KEY", "")),
		Issuer:         getEnv("FINANCE_OIDC_ISSUER", ""),
		ClientID:       getEnv("FINANCE_OIDC_CLIENT_ID", ""),
		RequestTimeout: getEnvDuration("FINANCE_IDENTITY_TIMEOUT", 5*time.Second),
	}
}

func loadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:      getEnv("FINANCE_STRIPE_SECRET_KEY", getEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret:  getEnv("FINANCE_STRIPE_WEBHOOK_SECRET", getEnv("STRIPE_WEBHOOK_SECRET", "")),
		RequestTimeout: getEnvDuration("FINANCE_STRIPE_TIMEOUT", 20*time.Second),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		PlanCatalogFile:    getEnv("FINANCE_PLAN_CATALOG_FILE", ""),
		WatchPlanCatalog:   getEnvBool("FINANCE_PLAN_CATALOG_WATCH", true),
		ReconcileSchedule:  getEnv("FINANCE_RECONCILE_SCHEDULE", ""),
		ReconcileBatchSize: getEnvInt("FINANCE_RECONCILE_BATCH_SIZE", 100),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("FINANCE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FINANCE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FINANCE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FINANCE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FINANCE_OTEL_SERVICE_NAME", "finance-api"),
		OTelServiceVersion: getEnv("FINANCE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FINANCE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("FINANCE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
	}
	if c.RateLimit.GeneralLimit <= 0 || c.RateLimit.AuthLimit <= 0 {
		return fmt.Errorf("rate limit budgets must be positive")
	}
	if c.RateLimit.GeneralWindow <= 0 || c.RateLimit.AuthWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	switch c.Identity.Mode {
	case "user_endpoint":
		if c.Identity.BaseURL == "" {
			return fmt.Errorf("identity URL is required for user_endpoint mode")
		}
	case "oidc_idtoken", "oidc_userinfo":
		if c.Identity.Issuer == "" {
			return fmt.Errorf("OIDC issuer is required for %s mode", c.Identity.Mode)
		}
		if c.Identity.Mode == "oidc_idtoken" && c.Identity.ClientID == "" {
			return fmt.Errorf("OIDC client id is required for oidc_idtoken mode")
		}
	default:
		return fmt.Errorf("invalid identity mode: %s", c.Identity.Mode)
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
