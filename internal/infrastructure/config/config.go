// Package config loads static service configuration from the
// environment. Runtime payment policy lives in the database
// (entities.PaymentConfig) and is not handled here.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the static service configuration.
type Config struct {
	Environment string
	LogLevel    string

	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Wise        WiseConfig
	Flutterwave FlutterwaveConfig
	Scheduler   SchedulerConfig
	Email       EmailConfig
	Webhook     WebhookConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// WiseConfig holds bank-transfer rail settings.
type WiseConfig struct {
	BaseURL       string
	APIToken      string
	ProfileID     string
	WebhookSecret string
}

// FlutterwaveConfig holds mobile-money rail settings.
type FlutterwaveConfig struct {
	BaseURL   string
	SecretKey string
	VerifHash string // shared secret echoed in the verif-hash header
}

// SchedulerConfig holds automatic payment scheduler settings.
type SchedulerConfig struct {
	Enabled        bool
	CronSpec       string
	BatchSize      int
	InterItemDelay time.Duration
}

// EmailConfig holds admin alert mail settings. The SMTP fields are
// only read when Provider is "smtp" or "mailpit".
type EmailConfig struct {
	Provider  string
	APIKey    string
	FromEmail string
	FromName  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
}

// WebhookConfig holds webhook processing settings.
type WebhookConfig struct {
	EventRetention   time.Duration
	SkipVerification bool // development/testing only
}

// Load reads configuration from the environment, with .env support.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("WISE_BASE_URL", "https://api.transferwise.com")
	v.SetDefault("FLUTTERWAVE_BASE_URL", "https://api.flutterwave.com/v3")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_CRON_SPEC", "*/5 * * * *")
	v.SetDefault("SCHEDULER_BATCH_SIZE", 20)
	v.SetDefault("SCHEDULER_INTER_ITEM_DELAY", "2s")
	v.SetDefault("EMAIL_PROVIDER", "sendgrid")
	v.SetDefault("EMAIL_FROM_NAME", "Payout Engine")
	v.SetDefault("EMAIL_SMTP_HOST", "localhost")
	v.SetDefault("EMAIL_SMTP_PORT", 1025)
	v.SetDefault("EMAIL_SMTP_USE_TLS", false)
	v.SetDefault("WEBHOOK_EVENT_RETENTION", "720h")
	v.SetDefault("WEBHOOK_SKIP_VERIFICATION", false)

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:         v.GetInt("SERVER_PORT"),
			ReadTimeout:  v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetInt("SERVER_WRITE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		Wise: WiseConfig{
			BaseURL:       v.GetString("WISE_BASE_URL"),
			APIToken:      v.GetString("WISE_API_TOKEN"),
			ProfileID:     v.GetString("WISE_PROFILE_ID"),
			WebhookSecret: v.GetString("WISE_WEBHOOK_SECRET"),
		},
		Flutterwave: FlutterwaveConfig{
			BaseURL:   v.GetString("FLUTTERWAVE_BASE_URL"),
			SecretKey: v.GetString("FLUTTERWAVE_SECRET_KEY"),
			VerifHash: v.GetString("FLUTTERWAVE_VERIF_HASH"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        v.GetBool("SCHEDULER_ENABLED"),
			CronSpec:       v.GetString("SCHEDULER_CRON_SPEC"),
			BatchSize:      v.GetInt("SCHEDULER_BATCH_SIZE"),
			InterItemDelay: v.GetDuration("SCHEDULER_INTER_ITEM_DELAY"),
		},
		Email: EmailConfig{
			Provider:  v.GetString("EMAIL_PROVIDER"),
			APIKey:    v.GetString("EMAIL_API_KEY"),
			FromEmail: v.GetString("EMAIL_FROM_EMAIL"),
			FromName:  v.GetString("EMAIL_FROM_NAME"),

			SMTPHost:     v.GetString("EMAIL_SMTP_HOST"),
			SMTPPort:     v.GetInt("EMAIL_SMTP_PORT"),
			SMTPUsername: v.GetString("EMAIL_SMTP_USERNAME"),
			SMTPPassword: v.GetString("EMAIL_SMTP_PASSWORD"),
			SMTPUseTLS:   v.GetBool("EMAIL_SMTP_USE_TLS"),
		},
		Webhook: WebhookConfig{
			EventRetention:   v.GetDuration("WEBHOOK_EVENT_RETENTION"),
			SkipVerification: v.GetBool("WEBHOOK_SKIP_VERIFICATION"),
		},
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Environment == "production" && cfg.Webhook.SkipVerification {
		return nil, fmt.Errorf("webhook verification cannot be skipped in production")
	}

	return cfg, nil
}
