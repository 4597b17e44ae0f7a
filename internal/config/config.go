package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/formpilot/formpilot/internal/engine"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Env      Environment `envconfig:"ENV" default:"development"`
	LogLevel string      `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool        `envconfig:"DEBUG" default:"false"`

	// Application
	App AppConfig

	// Server
	Server ServerConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Claude AI (answer generation)
	Claude ClaudeConfig

	// Embeddings (question matching)
	Embedding EmbeddingConfig

	// Fill engine
	Engine EngineConfig

	// Browser
	Browser BrowserConfig

	// Storage
	Storage StorageConfig

	// Features (feature flags)
	Features FeatureFlags

	// Rate Limits
	RateLimits RateLimitConfig

	// Security
	Security SecurityConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name    string `envconfig:"APP_NAME" default:"formpilot"`
	Version string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"formpilot"`
	Password        string        `envconfig:"DB_PASSWORD" default:""`
	Database        string        `envconfig:"DB_NAME" default:"formpilot"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClaudeConfig holds Claude AI settings for answer generation
type ClaudeConfig struct {
	APIKey       string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	BaseURL      string        `envconfig:"CLAUDE_BASE_URL" default:"https://api.anthropic.com"`
	Model        string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	Timeout      time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"30s"`
	RateLimitRPM int           `envconfig:"CLAUDE_RATE_LIMIT_RPM" default:"50"`
	CacheTTL     time.Duration `envconfig:"CLAUDE_CACHE_TTL" default:"24h"`
	MaxRetries   int           `envconfig:"CLAUDE_MAX_RETRIES" default:"3"`
}

// EmbeddingConfig holds embedding service settings for question matching.
// With Provider "keyword" (or no API key) the matcher runs in reduced mode
// against the phrase corpus without any embedding backend.
type EmbeddingConfig struct {
	Provider     string        `envconfig:"EMBEDDING_PROVIDER" default:"openai"` // openai, keyword
	APIKey       string        `envconfig:"OPENAI_API_KEY" default:""`
	BaseURL      string        `envconfig:"EMBEDDING_BASE_URL" default:"https://api.openai.com/v1"`
	Model        string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	CacheTTL     time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"24h"`
	MaxBatchSize int           `envconfig:"EMBEDDING_MAX_BATCH_SIZE" default:"100"`
	RateLimitRPM int           `envconfig:"EMBEDDING_RATE_LIMIT_RPM" default:"3000"`
}

// EngineConfig holds fill engine policy knobs
type EngineConfig struct {
	MatchThreshold    float64       `envconfig:"ENGINE_MATCH_THRESHOLD" default:"0.45"`
	PageCap           int           `envconfig:"ENGINE_PAGE_CAP" default:"10"`
	NavigationTimeout time.Duration `envconfig:"ENGINE_NAVIGATION_TIMEOUT" default:"30s"`
	SettleDelay       time.Duration `envconfig:"ENGINE_SETTLE_DELAY" default:"2s"`
	StepDelay         time.Duration `envconfig:"ENGINE_STEP_DELAY" default:"300ms"`
	CaptureScreenshot bool          `envconfig:"ENGINE_CAPTURE_SCREENSHOT" default:"false"`
}

// EngineSettings builds the engine's config from the policy knobs, keeping
// the default selector sets.
func (c EngineConfig) EngineSettings() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.PageCap = c.PageCap
	cfg.NavigationTimeout = c.NavigationTimeout
	cfg.SettleDelay = c.SettleDelay
	cfg.StepDelay = c.StepDelay
	cfg.CaptureScreenshot = c.CaptureScreenshot
	return cfg
}

// BrowserConfig holds browser automation settings
type BrowserConfig struct {
	Headless bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	SlowMo   time.Duration `envconfig:"BROWSER_SLOW_MO" default:"0"`
}

// StorageConfig holds object storage settings for run screenshots
type StorageConfig struct {
	Endpoint       string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey      string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"STORAGE_BUCKET" default:"formpilot"`
	Region         string `envconfig:"STORAGE_REGION" default:"us-east-1"`
	UseSSL         bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
	ScreenshotPath string `envconfig:"STORAGE_SCREENSHOT_PATH" default:"screenshots"`
}

// FeatureFlags holds feature toggles
type FeatureFlags struct {
	EnableAutoSubmit  bool `envconfig:"FEATURE_AUTO_SUBMIT" default:"true"`
	EnableLearning    bool `envconfig:"FEATURE_LEARNING" default:"true"`
	MaxConcurrentRuns int  `envconfig:"FEATURE_MAX_CONCURRENT_RUNS" default:"3"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMin int  `envconfig:"RATE_LIMIT_REQUESTS_PER_MIN" default:"60"`
	BurstSize      int  `envconfig:"RATE_LIMIT_BURST_SIZE" default:"10"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	APIKeyHeader string `envconfig:"SECURITY_API_KEY_HEADER" default:"X-API-Key"`
	APIKey       string `envconfig:"SECURITY_API_KEY" default:""`

	CORSEnabled        bool     `envconfig:"CORS_ENABLED" default:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Embedding.Provider != "openai" && c.Embedding.Provider != "keyword" {
		errs = append(errs, fmt.Sprintf("EMBEDDING_PROVIDER must be openai or keyword, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		// Not fatal: the matcher falls back to keyword mode, but warn early
		// in production where silent degradation is surprising.
		if c.Env == EnvProduction {
			errs = append(errs, "OPENAI_API_KEY is required with EMBEDDING_PROVIDER=openai in production")
		}
	}
	if c.Engine.MatchThreshold <= 0 || c.Engine.MatchThreshold > 1 {
		errs = append(errs, "ENGINE_MATCH_THRESHOLD must be in (0, 1]")
	}
	if c.Engine.PageCap < 1 {
		errs = append(errs, "ENGINE_PAGE_CAP must be at least 1")
	}
	if c.Env != EnvDevelopment {
		if c.Database.Password == "" {
			errs = append(errs, "DB_PASSWORD is required in non-development mode")
		}
		if c.Security.APIKey == "" {
			errs = append(errs, "SECURITY_API_KEY is required in non-development mode")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetLogLevel returns the appropriate zap log level
func (c *Config) GetLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
