package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/passport/internal/passport/service"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
)

type Config struct {
	Issuer               string        // Issuer claim for access tokens (default: passport)
	DatabaseFile         string        // SQLite database file (default: ./passport.db)
	KeyFile              string        // PEM file holding the Ed25519 signing key, created if missing (default: ./signing.pem)
	PepperFile           string        // File holding the password pepper, created if missing (default: ./pepper)
	AdminUsername        string        // Seed administrator, skipped when empty
	AdminPassword        string        // Seed administrator password
	AdminScopes          []string      // Seed administrator scopes (default: admin:read,admin:write)
	AdminTOTPSecret      string        // Seed administrator base32 TOTP secret, one-time codes off when empty
	AccessTTL            time.Duration // Access token lifetime (default: 15m)
	RefreshTTL           time.Duration // Refresh token lifetime (default: 7 days)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	LogFile              string        // Optional rotated log file instead of stderr
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired token sweep interval (default: 1h)
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory if there is one. Variables already set win over .env.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Issuer:               getEnvOrDefault("PASSPORT_ISSUER", "passport"),
		DatabaseFile:         getEnvOrDefault("PASSPORT_DATABASE_FILE", "passport.db"),
		KeyFile:              getEnvOrDefault("PASSPORT_KEY_FILE", "signing.pem"),
		PepperFile:           getEnvOrDefault("PASSPORT_PEPPER_FILE", "pepper"),
		AdminUsername:        os.Getenv("PASSPORT_ADMIN_USERNAME"),
		AdminPassword:        os.Getenv("PASSPORT_ADMIN_PASSWORD"),
		AdminScopes:          getEnvListOrDefault("PASSPORT_ADMIN_SCOPES", service.DefaultAdminScopes),
		AdminTOTPSecret:      os.Getenv("PASSPORT_ADMIN_TOTP_SECRET"),
		AccessTTL:            getEnvDurationOrDefault("PASSPORT_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:           getEnvDurationOrDefault("PASSPORT_REFRESH_TTL", service.DefaultRefreshTokenTTL),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		LogFile:              os.Getenv("LOG_FILE"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
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

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
