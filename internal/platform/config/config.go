package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the registration service needs from the
// environment. FromEnv keeps main lean and defaults to a development setup.
type Config struct {
	Addr    string
	BaseURL string

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	SMTP     SMTPConfig

	// TokenSigningKey signs email-verification action tokens.
	TokenSigningKey string
	// TokenLifespan bounds how long a verification link stays valid.
	TokenLifespan time.Duration
	// SessionLifespan bounds an authentication attempt.
	SessionLifespan time.Duration

	// TosURI and PolicyURI enable the corresponding consent checkboxes when
	// non-empty, mirroring the client attributes of the auth server.
	TosURI    string
	PolicyURI string

	// RegistrationRole is granted to every self-registered account.
	RegistrationRole string

	// AdminToken guards the study administration endpoints. Empty disables
	// them.
	AdminToken string
}

// PostgresConfig configures the identity and study stores.
type PostgresConfig struct {
	URL string
}

// RedisConfig configures the auth session store. Empty URL means the
// in-memory store is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event sink. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SMTPConfig configures outbound verification mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("PIA_AUTH_ADDR", ":8080"),
		BaseURL:          envOr("PIA_AUTH_BASE_URL", "http://localhost:8080"),
		TokenSigningKey:  envOr("PIA_TOKEN_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenLifespan:    envDurationOr("PIA_TOKEN_LIFESPAN", 15*time.Minute),
		SessionLifespan:  envDurationOr("PIA_SESSION_LIFESPAN", 30*time.Minute),
		TosURI:           os.Getenv("PIA_TOS_URI"),
		PolicyURI:        os.Getenv("PIA_POLICY_URI"),
		RegistrationRole: envOr("PIA_REGISTRATION_ROLE", "Proband"),
		AdminToken:       os.Getenv("PIA_ADMIN_TOKEN"),
	}

	cfg.Postgres = PostgresConfig{URL: os.Getenv("PIA_POSTGRES_URL")}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("PIA_REDIS_URL"),
		PoolSize:     envIntOr("PIA_REDIS_POOL_SIZE", 10),
		MinIdleConns: envIntOr("PIA_REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDurationOr("PIA_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDurationOr("PIA_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDurationOr("PIA_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}

	if brokers := os.Getenv("PIA_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   envOr("PIA_KAFKA_AUDIT_TOPIC", "pia.audit.auth"),
		}
	}

	cfg.SMTP = SMTPConfig{
		Host:     envOr("PIA_SMTP_HOST", "localhost"),
		Port:     envIntOr("PIA_SMTP_PORT", 587),
		Username: os.Getenv("PIA_SMTP_USER"),
		Password: os.Getenv("PIA_SMTP_PASSWORD"),
		From:     envOr("PIA_SMTP_FROM", "noreply@pia-study.de"),
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
