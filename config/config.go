package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	Env     string
	BaseURL string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	StripeSecretKey     string
	StripeWebhookSecret string

	JWTSecret      string
	RedisURL       string
	IdempotencyTTL time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	EmailTo      string

	AWSRegion         string
	AWSUseSecrets     bool
	AWSSecretName     string
	OrderSNSTopicARN  string
	ReconcileQueueURL string
	DocumentBucket    string

	KafkaBrokers    []string
	KafkaOrderTopic string

	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string
}

// SecretSource resolves a secret holding a flat JSON object of config keys.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// Load reads the process environment, after merging a .env file when one
// exists. Secrets are applied separately by ApplySecrets.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		Env:     getEnv("ENV", "development"),
		BaseURL: strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Australia/Sydney"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisURL:       os.Getenv("REDIS_URL"),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		EmailFrom:    getEnv("EMAIL_FROM", "noreply@trustaustralia.com.au"),
		EmailTo:      getEnv("EMAIL_TO", "support@trustaustralia.com.au"),

		AWSRegion:         getEnv("AWS_REGION", "ap-southeast-2"),
		AWSUseSecrets:     os.Getenv("AWS_USE_SECRETS") == "true",
		AWSSecretName:     getEnv("AWS_SECRET_NAME", "trustaustralia/orders"),
		OrderSNSTopicARN:  os.Getenv("ORDER_SNS_TOPIC_ARN"),
		ReconcileQueueURL: os.Getenv("RECONCILE_QUEUE_URL"),
		DocumentBucket:    os.Getenv("DOCUMENT_BUCKET"),

		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic: getEnv("KAFKA_ORDER_TOPIC", "orders.events"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 10),

		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "TrustAustralia"),
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/trustaustralia/orders"),
	}

	return cfg, nil
}

// ApplySecrets overlays non-empty values from the configured secret.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) error {
	m, err := src.GetSecretMap(ctx, c.AWSSecretName)
	if err != nil {
		return err
	}

	overlay := map[string]*string{
		"POSTGRES_USER":         &c.PostgresUser,
		"POSTGRES_PASSWORD":     &c.PostgresPassword,
		"POSTGRES_DB":           &c.PostgresDB,
		"POSTGRES_HOST":         &c.PostgresHost,
		"POSTGRES_PORT":         &c.PostgresPort,
		"STRIPE_SECRET_KEY":     &c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": &c.StripeWebhookSecret,
		"JWT_SECRET":            &c.JWTSecret,
		"SMTP_USERNAME":         &c.SMTPUsername,
		"SMTP_PASSWORD":         &c.SMTPPassword,
	}
	for key, dst := range overlay {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
	return nil
}

// Validate reports the first missing required setting. The webhook secret is
// optional; without it the webhook endpoint answers 500.
func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
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
