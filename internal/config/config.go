package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName   string
	AppEnv    string
	AppURL    string
	Port      string
	ClientURL string // SPA origin allowed by CORS
	Timezone  string // day-bucket location for check-ins

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Identity: HS256 shared secret, or an OIDC issuer when set
	JWTSecret    string
	OIDCIssuer   string
	OIDCClientID string

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN   string
	MetricsUser string
	MetricsPass string

	// Streaks
	CheckInRatePerMinute int
	JobsEnabled          bool // run break/archive jobs inside the server
	JobsInterval         time.Duration
	HistoryRetentionDays int

	// Storage (S3-compatible, optional: enables the history archive)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)
}

// Load reads .env and the environment. Invalid configuration is fatal.
func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	return cfg
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var missing []error
	required := func(key string) string {
		v, err := envRequired(key)
		if err != nil {
			missing = append(missing, err)
		}
		return v
	}

	cfg := &Config{
		// Application
		AppName:   envString("APP_NAME", "Healthtrack"),
		AppEnv:    required("APP_ENV"), // Required: 'development' or 'production'
		AppURL:    envString("APP_URL", "http://localhost:8090"),
		Port:      envString("PORT", "8090"),
		ClientURL: envString("CLIENT_URL", "http://localhost:3000"),
		Timezone:  envString("TIMEZONE", "UTC"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/healthtrack.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		// Identity
		JWTSecret:    envString("JWT_SECRET", ""),
		OIDCIssuer:   envString("OIDC_ISSUER", ""),
		OIDCClientID: envString("OIDC_CLIENT_ID", ""),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Observability
		SentryDSN:   envString("SENTRY_DSN", ""),
		MetricsUser: envString("METRICS_USER", ""),
		MetricsPass: envString("METRICS_PASS", ""),

		// Streaks
		CheckInRatePerMinute: envInt("CHECKIN_RATE_PER_MINUTE", 10),
		JobsEnabled:          envBool("JOBS_ENABLED", true),
		JobsInterval:         envDuration("JOBS_INTERVAL", time.Hour),
		HistoryRetentionDays: envInt("HISTORY_RETENTION_DAYS", 365),

		// Storage
		S3Region:    envString("S3_REGION", ""),
		S3Bucket:    envString("S3_BUCKET", ""),
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""),
	}

	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" && c.OIDCIssuer == "" {
		return errors.New("either JWT_SECRET or OIDC_ISSUER must be set")
	}
	if c.OIDCIssuer != "" && c.OIDCClientID == "" {
		return errors.New("OIDC_CLIENT_ID is required with OIDC_ISSUER")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	// Yesterday's entry must survive archiving for streak continuation.
	if c.HistoryRetentionDays < 2 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be at least 2, got %d", c.HistoryRetentionDays)
	}
	if c.JobsEnabled && c.JobsInterval <= 0 {
		return fmt.Errorf("JOBS_INTERVAL must be positive, got %s", c.JobsInterval)
	}
	if c.CheckInRatePerMinute < 1 {
		return fmt.Errorf("CHECKIN_RATE_PER_MINUTE must be positive, got %d", c.CheckInRatePerMinute)
	}
	// Production: validate required services
	if c.IsProduction() && c.ResendAPIKey == "" {
		return errors.New("production deployment requires RESEND_API_KEY (set APP_ENV=development for email log mode)")
	}
	return nil
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("required env var %s missing", key)
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location resolves TIMEZONE for day bucketing.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ArchiveEnabled reports whether S3 is configured for the history archive.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != "" && c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// MetricsEnabled reports whether /metrics is exposed.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsUser != "" && c.MetricsPass != ""
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and sensitive data are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:   c.AppName,
		AppEnv:    c.AppEnv,
		AppURL:    c.AppURL,
		Port:      c.Port,
		ClientURL: c.ClientURL,
		Timezone:  c.Timezone,

		DBDriver: c.DBDriver,

		OIDCIssuer:   c.OIDCIssuer,
		OIDCClientID: c.OIDCClientID,

		EmailFrom: c.EmailFrom,

		CheckInRatePerMinute: c.CheckInRatePerMinute,
		JobsEnabled:          c.JobsEnabled,
		JobsInterval:         c.JobsInterval,
		HistoryRetentionDays: c.HistoryRetentionDays,

		S3Region:   c.S3Region,
		S3Bucket:   c.S3Bucket,
		S3Endpoint: c.S3Endpoint,
	}
}
