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

const envProduction = "production"

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Reaper   ReaperConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `validate:"required"`
	Env                   string `validate:"required"`
	Host                  string
	Port                  string `validate:"required"`
	Version               string
	RequestTimeoutSeconds int `validate:"gte=0"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32 `validate:"gte=0"`
	MinConns       int32 `validate:"gte=0"`
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer credential and session validation parameters.
type AuthConfig struct {
	Scheme                string        `validate:"required"`
	JWTSecret             string        `validate:"required,min=16"`
	Issuer                string        `validate:"required"`
	Audience              string        `validate:"required"`
	ClockSkew             time.Duration `validate:"gte=0"`
	StoreTimeout          time.Duration `validate:"gt=0"`
	AccessTokenTTLMinutes int           `validate:"gt=0"`

	// StoreFailurePolicy has no default: operators must choose open or closed.
	StoreFailurePolicy     string `validate:"required,oneof=open closed"`
	ReducedAssuranceRoutes []string
}

// ReaperConfig controls the background session sweep.
type ReaperConfig struct {
	Enabled   bool
	Interval  time.Duration `validate:"gt=0"`
	Retention time.Duration `validate:"gt=0"`
	MaxConns  int32         `validate:"gt=0"`
	Timeout   time.Duration `validate:"gt=0"`
	LockTTL   time.Duration `validate:"gte=0"`
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	durations := map[string]time.Duration{}
	for key, fallback := range map[string]string{
		"AUTH_CLOCK_SKEW":    "0s",
		"AUTH_STORE_TIMEOUT": "2s",
		"REAPER_INTERVAL":    "1h",
		"REAPER_RETENTION":   "720h",
		"REAPER_TIMEOUT":     "30s",
		"REAPER_LOCK_TTL":    "",
	} {
		d, err := getEnvAsDuration(key, fallback)
		if err != nil {
			return nil, err
		}
		durations[key] = d
	}

	lockTTL := durations["REAPER_LOCK_TTL"]
	if lockTTL == 0 {
		lockTTL = durations["REAPER_INTERVAL"] / 2
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "property-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			Scheme:                 getEnv("AUTH_SCHEME", "Bearer"),
			JWTSecret:              os.Getenv("AUTH_JWT_SECRET"),
			Issuer:                 os.Getenv("AUTH_JWT_ISSUER"),
			Audience:               os.Getenv("AUTH_JWT_AUDIENCE"),
			ClockSkew:              durations["AUTH_CLOCK_SKEW"],
			StoreTimeout:           durations["AUTH_STORE_TIMEOUT"],
			StoreFailurePolicy:     strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_STORE_FAILURE_POLICY"))),
			ReducedAssuranceRoutes: getEnvAsList("AUTH_REDUCED_ASSURANCE_ROUTES"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Reaper: ReaperConfig{
			Enabled:   getEnvAsBool("REAPER_ENABLED", true),
			Interval:  durations["REAPER_INTERVAL"],
			Retention: durations["REAPER_RETENTION"],
			MaxConns:  int32(getEnvAsInt("REAPER_POSTGRES_MAX_CONNS", 2)),
			Timeout:   durations["REAPER_TIMEOUT"],
			LockTTL:   lockTTL,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether diagnostic detail must be hidden from callers.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, envProduction)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime used when minting tokens locally.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
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

// getEnvAsDuration fails loudly; a bad timeout must not silently fall back.
func getEnvAsDuration(key, fallback string) (time.Duration, error) {
	val := getEnv(key, fallback)
	if val == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
