package app

import (
	"errors"
	"os"
	"strconv"
	"time"
)

var ErrMissingSecret = errors.New("TOKEND_SECRET is required")

type Config struct {
	Secret      string // Required: HMAC signing secret for JWTs
	RefreshSalt string // Optional: HMAC salt for stored refresh token hashes (default: derived requirement, must differ from Secret)

	Issuer     string        // Optional: issuer claim (default: tokend)
	Audience   string        // Optional: audience claim (default: tokend-clients)
	AccessTTL  time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTTL time.Duration // Optional: refresh token lifetime (default: 168h)

	SessionSecret string        // Optional: HMAC key for session cookies (default: Secret + "/sessions")
	SessionTTL    time.Duration // Optional: session cookie lifetime (default: RefreshTTL)
	SessionCookie string        // Optional: session cookie name (default: session_id)
	CSRFCookie    string        // Optional: CSRF cookie name (default: csrf_token)
	CSRFHeader    string        // Optional: CSRF header name (default: X-CSRF-Token)

	StoreDriver  string // Store backend: sqlite, redis, or memory (default: sqlite)
	DatabaseFile string // SQLite database file (default: ./tokend.db)
	RedisAddr    string // Redis address (default: localhost:6379)
	RedisDB      int    // Redis database number (default: 0)

	LoginPerMinute int // Login attempts allowed per minute per user+IP (default: 10)
	LoginBurst     int // Login attempt burst (default: 5)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Secret:      os.Getenv("TOKEND_SECRET"),
		RefreshSalt: os.Getenv("TOKEND_REFRESH_SALT"),

		Issuer:     getEnvOrDefault("TOKEND_ISSUER", "tokend"),
		Audience:   getEnvOrDefault("TOKEND_AUDIENCE", "tokend-clients"),
		AccessTTL:  getEnvDurationOrDefault("TOKEND_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getEnvDurationOrDefault("TOKEND_REFRESH_TTL", 7*24*time.Hour),

		SessionSecret: os.Getenv("TOKEND_SESSION_SECRET"),
		SessionTTL:    getEnvDurationOrDefault("TOKEND_SESSION_TTL", 0),
		SessionCookie: os.Getenv("TOKEND_SESSION_COOKIE"),
		CSRFCookie:    os.Getenv("TOKEND_CSRF_COOKIE"),
		CSRFHeader:    os.Getenv("TOKEND_CSRF_HEADER"),

		StoreDriver:  getEnvOrDefault("TOKEND_STORE", "sqlite"),
		DatabaseFile: getEnvOrDefault("TOKEND_DATABASE_FILE", "tokend.db"),
		RedisAddr:    getEnvOrDefault("TOKEND_REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvIntOrDefault("TOKEND_REDIS_DB", 0),

		LoginPerMinute: getEnvIntOrDefault("TOKEND_LOGIN_PER_MINUTE", 10),
		LoginBurst:     getEnvIntOrDefault("TOKEND_LOGIN_BURST", 5),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if cfg.Secret == "" {
		return cfg, ErrMissingSecret
	}

	// Derived defaults. The refresh salt and session secret must not
	// equal the signing secret, so derive distinct keys when unset.
	if cfg.RefreshSalt == "" {
		cfg.RefreshSalt = cfg.Secret + "/refresh-salt"
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = cfg.Secret + "/sessions"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = cfg.RefreshTTL
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer minutes also accepted
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
