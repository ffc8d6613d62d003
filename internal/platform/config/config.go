package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is built once in main and passed by reference into each component.
// No package keeps ambient environment state of its own.
type Config struct {
	Addr     string `env:"CERTFLOW_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// ArtifactBackend selects where audit records, certificate blobs and
	// inventory entries are persisted: memory, redis, or postgres.
	ArtifactBackend string `env:"ARTIFACT_BACKEND" envDefault:"memory"`
	RedisURL        string `env:"REDIS_URL"`
	PostgresDSN     string `env:"POSTGRES_DSN"`

	// KafkaBrokers and NotifyTopic configure the notifier. An empty topic
	// disables notifications entirely (a configured no-op, not an error).
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	NotifyTopic  string   `env:"NOTIFY_TOPIC"`

	// CertbotEmail is forwarded to the issuer for ACME registration.
	CertbotEmail string `env:"CERTBOT_EMAIL" envDefault:"admin@example.com"`

	// JWTSigningKey guards the HTTP API when set. Empty disables auth,
	// which is only acceptable for local development.
	JWTSigningKey string `env:"JWT_SIGNING_KEY"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working pipeline.
// These are fatal at startup: no transaction exists yet to audit against.
func (c *Config) Validate() error {
	switch c.ArtifactBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when ARTIFACT_BACKEND=redis")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when ARTIFACT_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown artifact backend %q", c.ArtifactBackend)
	}
	if c.NotifyTopic != "" && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_TOPIC is set")
	}
	return nil
}
