package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Security SecurityConfig
	Sweep    SweepConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

type DatabaseConfig struct {
	Path string
}

// StoreConfig selects where medicines and intake history live. Accounts and
// the audit log always stay in the SQLite database.
type StoreConfig struct {
	Driver        string
	MongoURI      string
	MongoDatabase string
}

type SecurityConfig struct {
	JWTSecret         string
	SessionDuration   time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	LoginRateLimit    int
	LoginRateWindow   time.Duration
	CSPEnabled        bool
	HSTSEnabled       bool
	AllowedOrigins    []string
}

// SweepConfig controls the nightly adherence job.
type SweepConfig struct {
	Enabled            bool
	AuditRetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/medminder.db"),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
			MongoURI:      getEnv("MONGODB_URI", ""),
			MongoDatabase: getEnv("MONGODB_DATABASE", "medminder"),
		},
		Security: SecurityConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			SessionDuration:   getDuration("SESSION_DURATION", 336*time.Hour),
			RateLimitRequests: getInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getDuration("RATE_LIMIT_WINDOW", time.Minute),
			LoginRateLimit:    getInt("LOGIN_RATE_LIMIT", 5),
			LoginRateWindow:   getDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
			CSPEnabled:        getBool("CSP_ENABLED", true),
			HSTSEnabled:       getBool("HSTS_ENABLED", true),
			AllowedOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://localhost:*"}),
		},
		Sweep: SweepConfig{
			Enabled:            getBool("MISSED_SWEEP_ENABLED", true),
			AuditRetentionDays: getInt("AUDIT_RETENTION_DAYS", 90),
		},
	}

	// Validate required fields
	if cfg.Security.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	switch cfg.Store.Driver {
	case StoreSQLite:
	case StoreMongo:
		if cfg.Store.MongoURI == "" {
			return nil, ErrMissingMongoURI
		}
	default:
		return nil, &ConfigError{"STORE_DRIVER must be " + StoreSQLite + " or " + StoreMongo}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	ErrMissingJWTSecret     = &ConfigError{"JWT_SECRET environment variable is required"}
	ErrMissingMongoURI      = &ConfigError{"MONGODB_URI is required when STORE_DRIVER=mongo"}
	ErrMissingAgentUsername = &ConfigError{"AGENT_USERNAME and AGENT_PASSWORD environment variables are required"}
)

type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
