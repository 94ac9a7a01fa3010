package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Auth
	JWTSecret string

	// Database
	SQLiteDBPath string

	// AMQP (optional event bus)
	AMQPURL           string
	AMQPExchange      string
	AMQPRoutingPrefix string

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleExportSheetName    string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker schedules
	RolloverSchedule  string
	RetentionSchedule string
	ReminderSchedule  string

	// Retention
	UnverifiedTTL time.Duration
	SoftDeleteTTL time.Duration

	MembershipCacheTTL time.Duration

	// HTTP hardening
	RateLimitPerMinute int
	TrustedProxies     []string
	ShutdownTimeout    time.Duration
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finanzas.db"),

		AMQPURL:           getEnv("AMQP_URL", ""),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "finanzas"),
		AMQPRoutingPrefix: getEnv("AMQP_ROUTING_PREFIX", "ledger"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleExportSheetName:    getEnv("GOOGLE_EXPORT_SHEET_NAME", "Export"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		RolloverSchedule:  getEnv("ROLLOVER_SCHEDULE", "@daily"),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "@hourly"),
		ReminderSchedule:  getEnv("REMINDER_SCHEDULE", "@every 6h"),

		UnverifiedTTL: getEnvDuration("UNVERIFIED_TTL", 24*time.Hour),
		SoftDeleteTTL: getEnvDuration("SOFT_DELETE_TTL", 720*time.Hour),

		MembershipCacheTTL: getEnvDuration("MEMBERSHIP_CACHE_TTL", 30*time.Second),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// SheetsEnabled reports whether a spreadsheet export sink is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET is required and must be at least 16 characters")
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SheetsEnabled() {
		if c.GoogleExportSheetName == "" {
			errors = append(errors, "Google export sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	schedules := []struct{ name, spec string }{
		{"ROLLOVER_SCHEDULE", c.RolloverSchedule},
		{"RETENTION_SCHEDULE", c.RetentionSchedule},
		{"REMINDER_SCHEDULE", c.ReminderSchedule},
	}
	for _, s := range schedules {
		if _, err := cron.ParseStandard(s.spec); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': %v", s.name, s.spec, err))
		}
	}

	if c.UnverifiedTTL < time.Hour {
		errors = append(errors, fmt.Sprintf("invalid unverified TTL %v: must be at least 1 hour", c.UnverifiedTTL))
	}
	if c.SoftDeleteTTL < 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid soft delete TTL %v: must be at least 24 hours", c.SoftDeleteTTL))
	}
	if c.MembershipCacheTTL < 0 || c.MembershipCacheTTL > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid membership cache TTL %v: must be between 0 and 10 minutes", c.MembershipCacheTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': %v", cidr, err))
		}
	}
	if c.ShutdownTimeout <= 0 {
		errors = append(errors, "shutdown timeout must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
