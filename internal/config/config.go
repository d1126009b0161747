// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	AWS           AWSConfig
	Marketplace   MarketplaceConfig
	Storage       StorageConfig
	Jobs          JobsConfig
	Logging       LoggingConfig
	Notification  NotificationConfig
	EncryptionKey string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL           string
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	RunMigrations bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds bearer-token settings. Tokens are issued by the hosted
// identity platform and signed with a shared HS256 secret.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// AWSConfig holds the platform's own AWS settings, used for document storage
// and as the trusted principal of customer IAM roles.
type AWSConfig struct {
	Region            string
	AccessKeyID       string
	SecretKey         string
	PlatformAccountID string
}

// MarketplaceConfig tunes live marketplace searches and the optimization view.
type MarketplaceConfig struct {
	RenewalHorizonDays int
	ExpiringSoonDays   int
	SearchConcurrency  int
	SearchTimeout      time.Duration
	SearchMaxResults   int
	CacheTTL           time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
}

// StorageConfig holds S3 document storage settings.
type StorageConfig struct {
	Enabled      bool
	Bucket       string
	Endpoint     string
	UsePathStyle bool
	PresignTTL   time.Duration
	MaxUploadMB  int64
}

// JobsConfig holds background job schedules (six-field cron, seconds first).
type JobsConfig struct {
	Enabled                 bool
	MarketplaceSyncSchedule string
	UsageSyncSchedule       string
	RenewalAlertSchedule    string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	SlackWebhookURL string
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFrom       string
	EmailPassword   string
	WebhookURLs     string // comma-separated
}

// Load reads an optional .env file and then loads configuration from
// environment variables. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the current environment without validating it.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			URL:           getEnv("DATABASE_URL", ""),
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "contractlens"),
			Password:      getEnv("DB_PASSWORD", ""),
			Name:          getEnv("DB_NAME", "contractlens"),
			SSLMode:       getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:   getEnvDuration("DB_MAX_LIFETIME", 5*time.Minute),
			RunMigrations: getEnvBool("DB_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
			Audience:  getEnv("JWT_AUDIENCE", "authenticated"),
		},
		AWS: AWSConfig{
			Region:            getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:         getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PlatformAccountID: getEnv("AWS_PLATFORM_ACCOUNT_ID", ""),
		},
		Marketplace: MarketplaceConfig{
			RenewalHorizonDays: getEnvInt("MARKETPLACE_RENEWAL_HORIZON_DAYS", 60),
			ExpiringSoonDays:   getEnvInt("MARKETPLACE_EXPIRING_SOON_DAYS", 30),
			SearchConcurrency:  getEnvInt("MARKETPLACE_SEARCH_CONCURRENCY", 4),
			SearchTimeout:      getEnvDuration("MARKETPLACE_SEARCH_TIMEOUT", 20*time.Second),
			SearchMaxResults:   getEnvInt("MARKETPLACE_SEARCH_MAX_RESULTS", 5),
			CacheTTL:           getEnvDuration("MARKETPLACE_CACHE_TTL", 15*time.Minute),
			RateLimitRPS:       getEnvFloat("MARKETPLACE_RATE_LIMIT_RPS", 5),
			RateLimitBurst:     getEnvInt("MARKETPLACE_RATE_LIMIT_BURST", 10),
		},
		Storage: StorageConfig{
			Enabled:      getEnvBool("STORAGE_ENABLED", false),
			Bucket:       getEnv("STORAGE_BUCKET", "invoice-documents"),
			Endpoint:     getEnv("STORAGE_ENDPOINT", ""),
			UsePathStyle: getEnvBool("STORAGE_USE_PATH_STYLE", false),
			PresignTTL:   getEnvDuration("STORAGE_PRESIGN_TTL", time.Hour),
			MaxUploadMB:  int64(getEnvInt("STORAGE_MAX_UPLOAD_MB", 25)),
		},
		Jobs: JobsConfig{
			Enabled:                 getEnvBool("JOBS_ENABLED", true),
			MarketplaceSyncSchedule: getEnv("JOB_MARKETPLACE_SYNC", "0 0 */6 * * *"),
			UsageSyncSchedule:       getEnv("JOB_USAGE_SYNC", "0 30 2 * * *"),
			RenewalAlertSchedule:    getEnv("JOB_RENEWAL_ALERTS", "0 0 8 * * *"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Notification: NotificationConfig{
			SlackWebhookURL: getEnv("NOTIFICATION_SLACK_WEBHOOK", ""),
			EmailSMTPHost:   getEnv("NOTIFICATION_EMAIL_SMTP_HOST", ""),
			EmailSMTPPort:   getEnvInt("NOTIFICATION_EMAIL_SMTP_PORT", 587),
			EmailFrom:       getEnv("NOTIFICATION_EMAIL_FROM", ""),
			EmailPassword:   getEnv("NOTIFICATION_EMAIL_PASSWORD", ""),
			WebhookURLs:     getEnv("NOTIFICATION_WEBHOOK_URLS", ""),
		},
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Password == "" {
		return fmt.Errorf("DATABASE_URL or DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.EncryptionKey) < 16 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 16 characters")
	}
	if c.Marketplace.RenewalHorizonDays <= 0 || c.Marketplace.ExpiringSoonDays <= 0 {
		return fmt.Errorf("renewal horizons must be positive")
	}
	if c.Marketplace.SearchConcurrency < 1 {
		return fmt.Errorf("MARKETPLACE_SEARCH_CONCURRENCY must be at least 1")
	}
	if c.Marketplace.SearchMaxResults < 1 {
		return fmt.Errorf("MARKETPLACE_SEARCH_MAX_RESULTS must be at least 1")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required when storage is enabled")
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// WebhookList splits the configured webhook URLs.
func (c NotificationConfig) WebhookList() []string {
	return splitList(c.WebhookURLs)
}

// Helper functions
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		return splitList(v)
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
