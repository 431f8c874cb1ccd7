package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Data sources
	Data DataConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Services
	API      APIConfig
	Snapshot SnapshotConfig

	// PresetsPath points at a YAML file overriding the built-in presets
	PresetsPath string
}

// DataConfig holds dataset source configuration
type DataConfig struct {
	Source        string // "file" or "postgres"
	Format        string // "long" or "wide"
	PricePath     string
	VolumePath    string
	MarketCapPath string
	ForeignPath   string
	ReloadCron    string // robfig/cron spec with seconds; empty disables
}

// DatabaseConfig holds TimescaleDB configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port           int
	JWTSecret      string
	JWTExpiry      time.Duration
	AuthRequired   bool
	RateLimitRPS   int
	RateLimitBurst int
}

// SnapshotConfig holds snapshot aggregation configuration
type SnapshotConfig struct {
	MinPriorBars int
	Lookback     int
	Workers      int
	Publish      bool          // publish snapshots to Redis
	PublishTTL   time.Duration // TTL of published snapshot keys
	Rules        []string      // signal rules evaluated for every row
	Indicators   []string      // indicator requests; empty means the default catalog
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory or parent directories
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Data: DataConfig{
			Source:        getEnv("DATA_SOURCE", "file"),
			Format:        getEnv("DATA_FORMAT", "long"),
			PricePath:     getEnv("DATA_PRICE_PATH", ""),
			VolumePath:    getEnv("DATA_VOLUME_PATH", ""),
			MarketCapPath: getEnv("DATA_MARKETCAP_PATH", ""),
			ForeignPath:   getEnv("DATA_FOREIGN_PATH", ""),
			ReloadCron:    getEnv("DATA_RELOAD_CRON", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "vn_market"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		API: APIConfig{
			Port:           getEnvAsInt("API_PORT", 8090),
			JWTSecret:      getEnv("API_JWT_SECRET", ""),
			JWTExpiry:      getEnvAsDuration("API_JWT_EXPIRY", 24*time.Hour),
			AuthRequired:   getEnvAsBool("API_AUTH_REQUIRED", false),
			RateLimitRPS:   getEnvAsInt("API_RATE_LIMIT_RPS", 50),
			RateLimitBurst: getEnvAsInt("API_RATE_LIMIT_BURST", 100),
		},
		Snapshot: SnapshotConfig{
			MinPriorBars: getEnvAsInt("SNAPSHOT_MIN_PRIOR_BARS", 7),
			Lookback:     getEnvAsInt("SNAPSHOT_LOOKBACK", 120),
			Workers:      getEnvAsInt("SNAPSHOT_WORKERS", 8),
			Publish:      getEnvAsBool("SNAPSHOT_PUBLISH", false),
			PublishTTL:   getEnvAsDuration("SNAPSHOT_PUBLISH_TTL", 24*time.Hour),
			Rules:        getEnvAsStringSlice("SNAPSHOT_RULES", []string{"ma_cross", "macd_cross", "psar_flip", "rsi_threshold"}),
			Indicators:   getEnvAsStringSlice("SNAPSHOT_INDICATORS", nil),
		},
		PresetsPath: getEnv("PRESETS_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Data.Source {
	case "file":
		if c.Data.PricePath == "" {
			return fmt.Errorf("DATA_PRICE_PATH is required for the file source")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required for the postgres source")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be file or postgres, got %q", c.Data.Source)
	}
	if c.Data.Format != "long" && c.Data.Format != "wide" {
		return fmt.Errorf("DATA_FORMAT must be long or wide, got %q", c.Data.Format)
	}
	if c.Snapshot.Publish && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when SNAPSHOT_PUBLISH is set")
	}
	if c.API.AuthRequired && c.API.JWTSecret == "" {
		return fmt.Errorf("API_JWT_SECRET is required when API_AUTH_REQUIRED is set")
	}
	if c.Snapshot.MinPriorBars < 1 {
		return fmt.Errorf("SNAPSHOT_MIN_PRIOR_BARS must be at least 1")
	}
	if c.Snapshot.Lookback <= c.Snapshot.MinPriorBars {
		return fmt.Errorf("SNAPSHOT_LOOKBACK must exceed SNAPSHOT_MIN_PRIOR_BARS")
	}
	if c.Snapshot.Workers < 1 {
		return fmt.Errorf("SNAPSHOT_WORKERS must be at least 1")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
