package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Durable backend identifiers accepted by SESSION_STORE_BACKEND.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config aggregates runtime configuration for the session daemon.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	AuthAPI  AuthAPIConfig
	Session  SessionConfig
}

// AppConfig controls the local control server.
type AppConfig struct {
	Name    string `validate:"required"`
	Env     string `validate:"required"`
	Host    string `validate:"required"`
	Port    string `validate:"required,numeric"`
	Version string
}

// PostgresConfig holds DB connection values for the postgres token backend.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values for the redis token backend.
type RedisConfig struct {
	Addr     string `validate:"required"`
	Password string
	DB       int `validate:"gte=0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// AuthAPIConfig points at the remote auth server.
type AuthAPIConfig struct {
	BaseURL        string `validate:"required,url"`
	TimeoutSeconds int    `validate:"gt=0"`
}

// SessionConfig drives token persistence and the background checks.
type SessionConfig struct {
	StoreBackend              string `validate:"oneof=redis postgres memory"`
	TokenKey                  string `validate:"required"`
	CookieEnabled             bool
	CookieURL                 string `validate:"omitempty,url"`
	CookieName                string `validate:"required"`
	CookieTTLDays             int    `validate:"gt=0"`
	CookieSecure              bool
	MonitorIntervalSeconds    int `validate:"gt=0"`
	ValidationIntervalSeconds int `validate:"gt=0"`
	ValidateOnHydrate         bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "inkbook-sessiond"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "127.0.0.1"),
			Port:    getEnv("APP_PORT", "8089"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		AuthAPI: AuthAPIConfig{
			BaseURL:        getEnv("AUTH_API_BASE_URL", "http://localhost:8080/api/"),
			TimeoutSeconds: getEnvAsInt("AUTH_API_TIMEOUT_SECONDS", 10),
		},
		Session: SessionConfig{
			StoreBackend:              getEnv("SESSION_STORE_BACKEND", BackendRedis),
			TokenKey:                  getEnv("SESSION_TOKEN_KEY", "token"),
			CookieEnabled:             getEnvAsBool("SESSION_COOKIE_ENABLED", true),
			CookieURL:                 getEnv("SESSION_COOKIE_URL", "http://localhost:8080/"),
			CookieName:                getEnv("SESSION_COOKIE_NAME", "token"),
			CookieTTLDays:             getEnvAsInt("SESSION_COOKIE_TTL_DAYS", 30),
			CookieSecure:              getEnvAsBool("SESSION_COOKIE_SECURE", false),
			MonitorIntervalSeconds:    getEnvAsInt("SESSION_MONITOR_INTERVAL_SECONDS", 2),
			ValidationIntervalSeconds: getEnvAsInt("SESSION_VALIDATION_INTERVAL_SECONDS", 30),
			ValidateOnHydrate:         getEnvAsBool("SESSION_VALIDATE_ON_HYDRATE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Session.StoreBackend == BackendPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("invalid config: POSTGRES_DSN required for postgres token backend")
	}
	if c.Session.CookieEnabled && c.Session.CookieURL == "" {
		return fmt.Errorf("invalid config: SESSION_COOKIE_URL required when cookies are enabled")
	}
	if c.Session.CookieEnabled && c.Session.CookieSecure && !strings.HasPrefix(strings.ToLower(c.Session.CookieURL), "https://") {
		return fmt.Errorf("invalid config: SESSION_COOKIE_SECURE requires an https SESSION_COOKIE_URL")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// Timeout returns the per-call timeout for the auth server.
func (a AuthAPIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// MonitorInterval is the token tamper check cadence.
func (s SessionConfig) MonitorInterval() time.Duration {
	return time.Duration(s.MonitorIntervalSeconds) * time.Second
}

// ValidationInterval is the remote validation cadence.
func (s SessionConfig) ValidationInterval() time.Duration {
	return time.Duration(s.ValidationIntervalSeconds) * time.Second
}

// CookieTTL is the lifetime given to the token cookie.
func (s SessionConfig) CookieTTL() time.Duration {
	return time.Duration(s.CookieTTLDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
