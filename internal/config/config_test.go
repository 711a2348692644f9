package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "myapp://magic", cfg.DeepLinkBase())
	assert.Equal(t, 10*time.Minute, cfg.CodeTTLDuration())
	assert.Equal(t, StoreMemory, cfg.CodeStore)
	assert.Equal(t, TransportLog, cfg.Transport)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, "magiclink-audit", cfg.AuditKafkaTopic)
	assert.Nil(t, cfg.KafkaBrokersList())
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.TrustProxyHeaders)
	assert.Error(t, cfg.ValidateLambda())
}

func TestLoad_Production(t *testing.T) {
	prod := map[string]string{
		"APP_ENV":                "production",
		"TRANSPORT":              "ses",
		"SES_FROM_EMAIL":         "noreply@example.com",
		"CODE_STORE":             "dynamodb",
		"TOKEN_SIGNING_KEY":      "signing-key",
		"SESSION_AUTH_KEY":       "session-auth-key",
		"SESSION_ENCRYPTION_KEY": "0123456789abcdef",
	}
	setenv := func(t *testing.T, skip string) {
		os.Clearenv()
		for k, v := range prod {
			if k != skip {
				t.Setenv(k, v)
			}
		}
	}

	setenv(t, "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.NoError(t, cfg.ValidateLambda())

	for _, key := range []string{"TOKEN_SIGNING_KEY", "SESSION_AUTH_KEY", "SESSION_ENCRYPTION_KEY"} {
		t.Run("without "+key, func(t *testing.T) {
			setenv(t, key)
			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	t.Setenv("MAGIC_LINK_BASE_URL", "https://auth.example.com")
	t.Setenv("CODE_TTL", "5m")
	t.Setenv("CODE_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REGION", "eu-west-1")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("DEV_USERS", "alice@example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", cfg.DeepLinkBase())
	assert.Equal(t, "myapp://magic", cfg.AppDeepLink)
	assert.Equal(t, 5*time.Minute, cfg.CodeTTLDuration())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "eu-west-1", cfg.AWSRegionName())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokersList())
	assert.Equal(t, 10, cfg.RateLimitPerMin)
	assert.Equal(t, []string{"alice@example.com"}, cfg.DevUsersList())
}

func TestLoad_Invalid(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"unknown store":       {"CODE_STORE": "cassandra"},
		"redis without url":   {"CODE_STORE": "redis"},
		"postgres without db": {"CODE_STORE": "postgres"},
		"mongo without uri":   {"CODE_STORE": "mongo"},
		"bad ttl":             {"CODE_TTL": "soon"},
		"short ttl":           {"CODE_TTL": "10ms"},
		"ses without sender":  {"TRANSPORT": "ses"},
		"smtp without addr":   {"TRANSPORT": "smtp", "SES_FROM_EMAIL": "a@example.com"},
		"log in production":   {"APP_ENV": "production"},
		"unknown transport":   {"TRANSPORT": "pigeon"},
		"short session key":   {"SESSION_ENCRYPTION_KEY": "short"},
	} {
		t.Run(name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
