package config

import (
	"log/slog"
	"os"
	"time"
)

type Config struct {
	// MongoDB configuration
	MongoURI     string
	DatabaseName string

	// Server configuration
	Port           string
	Production     bool
	AllowedOrigins string

	// Session guard configuration
	SessionTTL        time.Duration
	SessionStaleAfter time.Duration
	PresenceWindow    time.Duration

	// Quote builder embed tokens
	EmbedTokenSecret string
	EmbedTokenTTL    time.Duration
}

func LoadConfig() *Config {
	cfg := &Config{
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName:      getEnv("MONGO_DB_NAME", "crm"),
		Port:              getEnv("PORT", "8080"),
		Production:        getEnv("APP_ENV", "development") == "production",
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "http://localhost:5173, http://localhost:3000"),
		SessionTTL:        getDuration("SESSION_TTL", 7*24*time.Hour),
		SessionStaleAfter: getDuration("SESSION_STALE_AFTER", 2*time.Minute),
		PresenceWindow:    getDuration("PRESENCE_WINDOW", 5*time.Minute),
		EmbedTokenSecret:  getEnv("EMBED_TOKEN_SECRET", ""),
		EmbedTokenTTL:     getDuration("EMBED_TOKEN_TTL", 10*time.Minute),
	}

	// Validate required configuration
	if cfg.MongoURI == "" {
		slog.Error("MONGO_URI not set")
	}
	if cfg.EmbedTokenSecret == "" {
		slog.Warn("EMBED_TOKEN_SECRET not set, quote builder embed tokens disabled")
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}
