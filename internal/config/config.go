package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Cache      CacheConfig
	Allocation AllocationConfig
	Reconciler ReconcilerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	// SeedFile is a JSON fixture loaded into the in-memory store when no
	// POSTGRES_DSN is configured.
	SeedFile string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the
// shared cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how actor tokens are verified.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// CacheConfig tunes the cache layer.
type CacheConfig struct {
	SettingsTTLSeconds   int
	RegistrantTTLSeconds int
	BreakerThreshold     int
	BreakerCooldownSec   int
}

// AllocationConfig holds allocator defaults.
type AllocationConfig struct {
	AgeGapDefault int
}

// ReconcilerConfig controls the background integrity reconciler.
type ReconcilerConfig struct {
	Enabled         bool
	IntervalSeconds int
	AutoResolve     []string
	FlagPolicyDrift bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "housing-allocation-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			SeedFile:              os.Getenv("MEMORY_SEED_FILE"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "housing:"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Cache: CacheConfig{
			SettingsTTLSeconds:   getEnvAsInt("CACHE_SETTINGS_TTL_SECONDS", 60),
			RegistrantTTLSeconds: getEnvAsInt("CACHE_REGISTRANT_TTL_SECONDS", 300),
			BreakerThreshold:     getEnvAsInt("CACHE_BREAKER_THRESHOLD", 3),
			BreakerCooldownSec:   getEnvAsInt("CACHE_BREAKER_COOLDOWN_SECONDS", 30),
		},
		Allocation: AllocationConfig{
			AgeGapDefault: getEnvAsInt("ALLOCATION_AGE_GAP_DEFAULT", 3),
		},
		Reconciler: ReconcilerConfig{
			Enabled:         getEnvAsBool("RECONCILER_ENABLED", true),
			IntervalSeconds: getEnvAsInt("RECONCILER_INTERVAL_SECONDS", 300),
			AutoResolve:     getEnvAsList("RECONCILER_AUTO_RESOLVE", []string{"orphaned-reference"}),
			FlagPolicyDrift: getEnvAsBool("RECONCILER_FLAG_POLICY_DRIFT", false),
		},
	}

	if cfg.Allocation.AgeGapDefault < 1 || cfg.Allocation.AgeGapDefault > 20 {
		return nil, fmt.Errorf("invalid ALLOCATION_AGE_GAP_DEFAULT %d: must be between 1 and 20", cfg.Allocation.AgeGapDefault)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SettingsTTL is how long policy values stay cached.
func (c CacheConfig) SettingsTTL() time.Duration {
	return seconds(c.SettingsTTLSeconds)
}

// RegistrantTTL is how long registrant lookups stay cached.
func (c CacheConfig) RegistrantTTL() time.Duration {
	return seconds(c.RegistrantTTLSeconds)
}

// BreakerCooldown is how long the shared cache is bypassed after it fails.
func (c CacheConfig) BreakerCooldown() time.Duration {
	return seconds(c.BreakerCooldownSec)
}

// Interval returns the scan interval, never less than one second.
func (r ReconcilerConfig) Interval() time.Duration {
	if r.IntervalSeconds < 1 {
		return time.Second
	}
	return time.Duration(r.IntervalSeconds) * time.Second
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
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

func getEnvAsList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
