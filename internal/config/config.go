// Package config loads and validates the service configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Code store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Transports.
const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Env       string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`

	// MagicLinkBaseURL is the base the emailed link is built on. When
	// empty, AppDeepLink is used directly.
	MagicLinkBaseURL string `mapstructure:"MAGIC_LINK_BASE_URL"`
	// AppDeepLink is where the consume endpoint redirects to.
	AppDeepLink string `mapstructure:"APP_DEEPLINK"`
	CodeTTL     string `mapstructure:"CODE_TTL"`

	CodeStore     string `mapstructure:"CODE_STORE"`
	RedisURL      string `mapstructure:"REDIS_URL"`
	TableName     string `mapstructure:"TABLE_NAME"`
	AWSRegion     string `mapstructure:"AWS_REGION"`
	Region        string `mapstructure:"REGION"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	Transport    string `mapstructure:"TRANSPORT"`
	FromEmail    string `mapstructure:"SES_FROM_EMAIL"`
	SMTPAddr     string `mapstructure:"SMTP_ADDR"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	SessionAuthKey       string `mapstructure:"SESSION_AUTH_KEY"`
	SessionEncryptionKey string `mapstructure:"SESSION_ENCRYPTION_KEY"`
	TokenSigningKey      string `mapstructure:"TOKEN_SIGNING_KEY"`
	TokenIssuer          string `mapstructure:"TOKEN_ISSUER"`
	RateLimitPerMin      int    `mapstructure:"RATE_LIMIT_PER_MIN"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// friends. Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	// DevUsers seeds the local pipeline's directory with verified users,
	// comma-separated email addresses.
	DevUsers string `mapstructure:"DEV_USERS"`
}

var keys = []string{
	"APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "HTTP_ADDR",
	"MAGIC_LINK_BASE_URL", "APP_DEEPLINK", "CODE_TTL",
	"CODE_STORE", "REDIS_URL", "TABLE_NAME", "AWS_REGION", "REGION",
	"DATABASE_URL", "MONGO_URI", "MONGO_DATABASE",
	"TRANSPORT", "SES_FROM_EMAIL", "SMTP_ADDR", "SMTP_USERNAME", "SMTP_PASSWORD",
	"KAFKA_BROKERS", "AUDIT_KAFKA_TOPIC",
	"SESSION_AUTH_KEY", "SESSION_ENCRYPTION_KEY", "TOKEN_SIGNING_KEY", "TOKEN_ISSUER",
	"RATE_LIMIT_PER_MIN", "TRUST_PROXY_HEADERS", "DEV_USERS",
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	v := viper.New()
	v.AutomaticEnv()
	for _, k := range keys {
		// Unmarshal only sees keys viper knows about.
		_ = v.BindEnv(k)
	}

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_DEEPLINK", "myapp://magic")
	v.SetDefault("CODE_TTL", "10m")
	v.SetDefault("CODE_STORE", StoreMemory)
	v.SetDefault("TABLE_NAME", "magic_link_codes")
	v.SetDefault("MONGO_DATABASE", "magiclink")
	v.SetDefault("TRANSPORT", TransportLog)
	v.SetDefault("AUDIT_KAFKA_TOPIC", "magiclink-audit")
	v.SetDefault("TOKEN_ISSUER", "magiclink")
	v.SetDefault("RATE_LIMIT_PER_MIN", 30)
	v.SetDefault("TRUST_PROXY_HEADERS", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if d, err := time.ParseDuration(c.CodeTTL); err != nil || d < time.Second {
		return fmt.Errorf("config: CODE_TTL %q must be a duration of at least 1s", c.CodeTTL)
	}
	switch c.CodeStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when CODE_STORE=redis")
		}
	case StoreDynamoDB:
		if c.TableName == "" {
			return errors.New("config: TABLE_NAME must be set when CODE_STORE=dynamodb")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when CODE_STORE=postgres")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGO_URI must be set when CODE_STORE=mongo")
		}
	default:
		return fmt.Errorf("config: unknown CODE_STORE %q", c.CodeStore)
	}
	switch c.Transport {
	case TransportLog:
		if c.IsProduction() {
			return errors.New("config: TRANSPORT=log must not be used when APP_ENV=production")
		}
	case TransportSES:
		if c.FromEmail == "" {
			return errors.New("config: SES_FROM_EMAIL must be set when TRANSPORT=ses")
		}
	case TransportSMTP:
		if c.SMTPAddr == "" || c.FromEmail == "" {
			return errors.New("config: SMTP_ADDR and SES_FROM_EMAIL must be set when TRANSPORT=smtp")
		}
	default:
		return fmt.Errorf("config: unknown TRANSPORT %q", c.Transport)
	}
	switch len(c.SessionEncryptionKey) {
	case 0, 16, 24, 32:
	default:
		return errors.New("config: SESSION_ENCRYPTION_KEY must be 16, 24 or 32 bytes")
	}
	if c.IsProduction() {
		if c.TokenSigningKey == "" || c.SessionAuthKey == "" || c.SessionEncryptionKey == "" {
			return errors.New("config: TOKEN_SIGNING_KEY, SESSION_AUTH_KEY and SESSION_ENCRYPTION_KEY must be set when APP_ENV=production")
		}
	}
	if c.RateLimitPerMin < 0 {
		return errors.New("config: RATE_LIMIT_PER_MIN must not be negative")
	}
	return nil
}

// ValidateLambda checks the settings needed when each trigger runs in its
// own process. Codes must outlive the process that issued them.
func (c *Config) ValidateLambda() error {
	if c.CodeStore == StoreMemory {
		return errors.New("config: CODE_STORE=memory cannot be shared between trigger processes")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DeepLinkBase is the base the emailed link is built on.
func (c *Config) DeepLinkBase() string {
	if c.MagicLinkBaseURL != "" {
		return c.MagicLinkBaseURL
	}
	return c.AppDeepLink
}

// CodeTTLDuration parses CodeTTL. Returns 10m if unset or invalid.
func (c *Config) CodeTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.CodeTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// AWSRegionName returns AWS_REGION, falling back to REGION.
func (c *Config) AWSRegionName() string {
	if c.AWSRegion != "" {
		return c.AWSRegion
	}
	return c.Region
}

// KafkaBrokersList splits KafkaBrokers on commas.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// DevUsersList splits DevUsers on commas.
func (c *Config) DevUsersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.DevUsers)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
