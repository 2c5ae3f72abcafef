package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// HTTP server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (asynq broker)
	Redis RedisConfig

	// Logging configuration
	Logging LoggingConfig

	// External identity providers
	Firebase FirebaseConfig
	Supabase SupabaseConfig

	// Reconciler tuning
	Reconciler ReconcilerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port)
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// FirebaseConfig holds the Google Identity Toolkit settings for the
// primary identity provider. An empty APIKey disables the provider.
type FirebaseConfig struct {
	APIKey  string
	BaseURL string // override for tests; defaults to the public endpoint
}

// SupabaseConfig holds the GoTrue settings for the secondary identity
// provider. An empty ProjectURL disables the provider.
type SupabaseConfig struct {
	ProjectURL string
	AnonKey    string
}

// ReconcilerConfig tunes the session reconciler
type ReconcilerConfig struct {
	// ProviderTimeout bounds each provider attempt; a timed-out attempt is
	// treated the same as an unavailable provider and falls through.
	ProviderTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "cryptopilot.sqlite"),
		},
		Redis: RedisConfig{
			Address: getEnv("REDIS_ADDRESS", "localhost:6379"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Firebase: FirebaseConfig{
			APIKey:  os.Getenv("FIREBASE_API_KEY"),
			BaseURL: getEnv("FIREBASE_BASE_URL", "https://identitytoolkit.googleapis.com/v1"),
		},
		Supabase: SupabaseConfig{
			ProjectURL: os.Getenv("SUPABASE_URL"),
			AnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
		},
		Reconciler: ReconcilerConfig{
			ProviderTimeout: 10 * time.Second,
		},
	}

	if raw := os.Getenv("PROVIDER_TIMEOUT_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT_SECONDS: %q", raw)
		}
		cfg.Reconciler.ProviderTimeout = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
