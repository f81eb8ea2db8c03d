package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
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

	App           AppConfig
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Claude        ClaudeConfig
	Storage       StorageConfig
	RateLimits    RateLimitConfig
	Security      SecurityConfig
	Consolidation ConsolidationConfig
}

// AppConfig holds application metadata
type AppConfig struct {
	Name    string `envconfig:"APP_NAME" default:"ai-test-management"`
	Version string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxRequestSize  int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"1048576"` // 1MB
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL settings. Driver "memory" keeps all data
// in process, for local runs without Postgres.
type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"postgres"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"testmgmt"`
	Password        string        `envconfig:"DB_PASSWORD" default:""`
	Database        string        `envconfig:"DB_NAME" default:"testmgmt"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"1m"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// InMemory reports whether the in-process store is selected
func (c DatabaseConfig) InMemory() bool {
	return c.Driver == "memory"
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Enabled      bool          `envconfig:"REDIS_ENABLED" default:"true"`
	Host         string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `envconfig:"REDIS_PASSWORD" default:""`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Addr returns Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClaudeConfig holds settings for the code generation collaborator. With no
// API key every step without code goes through the fallback placeholder.
type ClaudeConfig struct {
	APIKey       string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	BaseURL      string        `envconfig:"CLAUDE_BASE_URL" default:"https://api.anthropic.com/v1/messages"`
	Model        string        `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-20250514"`
	MaxTokens    int           `envconfig:"CLAUDE_MAX_TOKENS" default:"2048"`
	Timeout      time.Duration `envconfig:"CLAUDE_TIMEOUT" default:"60s"`
	RateLimitRPM int           `envconfig:"CLAUDE_RATE_LIMIT_RPM" default:"50"`
	MaxFailures  int           `envconfig:"CLAUDE_BREAKER_MAX_FAILURES" default:"5"`
	ResetTimeout time.Duration `envconfig:"CLAUDE_BREAKER_RESET_TIMEOUT" default:"30s"`
}

// Enabled reports whether code generation is configured
func (c ClaudeConfig) Enabled() bool {
	return c.APIKey != ""
}

// StorageConfig holds object storage settings for the script archive
type StorageConfig struct {
	Enabled   bool   `envconfig:"STORAGE_ENABLED" default:"false"`
	Endpoint  string `envconfig:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"STORAGE_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"STORAGE_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"STORAGE_BUCKET" default:"test-scripts"`
	UseSSL    bool   `envconfig:"STORAGE_USE_SSL" default:"false"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMin int  `envconfig:"RATE_LIMIT_REQUESTS_PER_MIN" default:"120"`
}

// SecurityConfig holds request identity and CORS settings
type SecurityConfig struct {
	UserIDHeader       string   `envconfig:"SECURITY_USER_ID_HEADER" default:"X-User-ID"`
	CORSEnabled        bool     `envconfig:"CORS_ENABLED" default:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ConsolidationConfig controls script assembly and versioning
type ConsolidationConfig struct {
	// ProjectRoot is the directory that holds tests/
	ProjectRoot     string        `envconfig:"PROJECT_ROOT" default:"./playwright"`
	ScriptExtension string        `envconfig:"SCRIPT_EXTENSION" default:"ts"`
	ActionTimeoutMs int           `envconfig:"ACTION_TIMEOUT_MS" default:"30000"`
	VersionDebounce time.Duration `envconfig:"VERSION_DEBOUNCE" default:"30s"`
	PreserveImports bool          `envconfig:"PRESERVE_IMPORTS" default:"true"`
	ScriptCacheTTL  time.Duration `envconfig:"SCRIPT_CACHE_TTL" default:"24h"`
	// GenerateMissing asks the code generator for steps without code
	// during consolidation
	GenerateMissing bool `envconfig:"GENERATE_MISSING_CODE" default:"true"`
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
	var errors []string

	switch strings.TrimPrefix(c.Consolidation.ScriptExtension, ".") {
	case "ts", "js", "mjs", "cjs":
	default:
		errors = append(errors, "SCRIPT_EXTENSION must be one of ts, js, mjs, cjs")
	}
	if c.Consolidation.ActionTimeoutMs <= 0 {
		errors = append(errors, "ACTION_TIMEOUT_MS must be positive")
	}
	if c.Consolidation.VersionDebounce < 0 {
		errors = append(errors, "VERSION_DEBOUNCE must not be negative")
	}
	if c.Consolidation.ProjectRoot == "" {
		errors = append(errors, "PROJECT_ROOT is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Env != EnvDevelopment && c.Database.Password == "" {
			errors = append(errors, "DB_PASSWORD is required in non-development mode")
		}
	case "memory":
		if c.Env == EnvProduction {
			errors = append(errors, "DB_DRIVER=memory is not allowed in production")
		}
	default:
		errors = append(errors, "DB_DRIVER must be postgres or memory")
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		errors = append(errors, "STORAGE_BUCKET is required when storage is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
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
