package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string
	SiteURL string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	TemplateBucket string // optional S3 bucket holding template overrides

	JWTSecret        string
	CredentialsKey   string // hex, 32 bytes; seals stored SMTP credentials
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ReauthTokenTTL   time.Duration
	RequireReauthFor map[string]bool

	OTPMaxAttempts int
	OTPTTL         time.Duration

	OutboxMaxAttempts   int
	OutboxRetention     time.Duration
	OutboxClaimTimeout  time.Duration
	OutboxSendRate      float64 // messages per second, 0 = unpaced
	OutboxDrainInterval time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
	SMTPTimeout  time.Duration

	SNSRegion        string
	AlertTopicARN    string
	RateLimitBackend string // memory | redis
	RedisAddr        string
	RateLimitMaxKeys int
	LoginRateLimit   int
	OTPRateLimit     int
	SignupRateLimit  int
	RateLimitWindow  time.Duration

	GoogleClientID string
	SignupMode     string   // open | invite
	AllowedOrigins []string // CORS allowed origins

	LogLevel  string
	LogFormat string
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts     string
	OTPs         string
	Outbox       string
	Invitations  string
	EmailChanges string
	Settings     string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),
		SiteURL: strings.TrimSuffix(getEnv("SITE_URL", "http://localhost:3000"), "/"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:     getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			OTPs:         getEnv("DYNAMO_TABLE_OTPS", "otps"),
			Outbox:       getEnv("DYNAMO_TABLE_OUTBOX", "outbox"),
			Invitations:  getEnv("DYNAMO_TABLE_INVITATIONS", "invitations"),
			EmailChanges: getEnv("DYNAMO_TABLE_EMAIL_CHANGES", "email_changes"),
			Settings:     getEnv("DYNAMO_TABLE_SETTINGS", "settings"),
		},
		TemplateBucket: getEnv("S3_TEMPLATE_BUCKET", ""),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		CredentialsKey:   getEnv("CREDENTIALS_KEY", ""),
		AccessTokenTTL:   getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:  getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ReauthTokenTTL:   getEnvDuration("REAUTH_TOKEN_TTL", 5*time.Minute),
		RequireReauthFor: parseSet(getEnv("REQUIRE_REAUTH_FOR", "delete_account,suspend_account,change_password,change_email")),

		OTPMaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 5),
		OTPTTL:         getEnvDuration("OTP_TTL", 10*time.Minute),

		OutboxMaxAttempts:   getEnvInt("OUTBOX_MAX_ATTEMPTS", 3),
		OutboxRetention:     getEnvDuration("OUTBOX_RETENTION", 7*24*time.Hour),
		OutboxClaimTimeout:  getEnvDuration("OUTBOX_CLAIM_TIMEOUT", 5*time.Minute),
		OutboxSendRate:      getEnvFloat("OUTBOX_SEND_RATE", 0),
		OutboxDrainInterval: getEnvDuration("OUTBOX_DRAIN_INTERVAL", 0),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPTLS:      getEnvBool("SMTP_TLS", false),
		SMTPTimeout:  getEnvDuration("SMTP_TIMEOUT", 15*time.Second),

		SNSRegion:        getEnv("SNS_REGION", "us-east-1"),
		AlertTopicARN:    getEnv("SNS_ALERT_TOPIC_ARN", ""),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RateLimitMaxKeys: getEnvInt("RATE_LIMIT_MAX_KEYS", 100000),
		LoginRateLimit:   getEnvInt("RATE_LIMIT_LOGIN", 10),
		OTPRateLimit:     getEnvInt("RATE_LIMIT_OTP", 5),
		SignupRateLimit:  getEnvInt("RATE_LIMIT_SIGNUP", 5),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		SignupMode:     getEnv("SIGNUP_MODE", "invite"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if c.CredentialsKey != "" {
		key, err := hex.DecodeString(c.CredentialsKey)
		if err != nil || len(key) != 32 {
			return errors.New("CREDENTIALS_KEY must be 64 hex characters")
		}
		if c.CredentialsKey == hex.EncodeToString([]byte(c.JWTSecret)[:32]) {
			return errors.New("CREDENTIALS_KEY must not be derived from JWT_SECRET")
		}
	}
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}
	switch c.SignupMode {
	case "open", "invite":
	default:
		return fmt.Errorf("unknown SIGNUP_MODE %q", c.SignupMode)
	}
	if c.OTPMaxAttempts < 1 || c.OutboxMaxAttempts < 1 {
		return errors.New("attempt limits must be positive")
	}
	return nil
}

// IsProduction reports whether cookies must be marked Secure.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("15m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func parseSet(v string) map[string]bool {
	set := make(map[string]bool)
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = true
		}
	}
	return set
}
