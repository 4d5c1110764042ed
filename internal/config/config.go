package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payment  PaymentConfig
	Tickets  TicketConfig
	Sweep    SweepConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	TicketApproved      string
	TicketArchived      string
	TicketValidated     string
	PaymentNotification string
}

type PaymentConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

type TicketConfig struct {
	// ReservationWindow is how long a pending ticket holds its place before
	// the sweep may reclaim it.
	ReservationWindow time.Duration
	// CodeMaxAttempts bounds the retry loop for validation code assignment.
	CodeMaxAttempts int
	// GeneralPrice is the per-person price for general admission, which has
	// no per-location inventory config behind it.
	GeneralPrice float64
	QRSecretKey  string
}

type SweepConfig struct {
	Interval    time.Duration
	BatchSize   int
	BackfillAge time.Duration
}

type AuthConfig struct {
	OIDCIssuer string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8086"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "admission_user"),
			Password:     getEnv("DB_PASSWORD", "admission_pass"),
			Database:     getEnv("DB_NAME", "admission"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "admission-group"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				TicketApproved:      getEnv("KAFKA_TOPIC_APPROVED", "admission.ticket.approved"),
				TicketArchived:      getEnv("KAFKA_TOPIC_ARCHIVED", "admission.ticket.archived"),
				TicketValidated:     getEnv("KAFKA_TOPIC_VALIDATED", "admission.ticket.validated"),
				PaymentNotification: getEnv("KAFKA_TOPIC_PAYMENTS", "admission.payment.notifications"),
			},
		},
		Payment: PaymentConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnv("PAYMENT_SUCCESS_URL", "https://admission.example.com/payment/success"),
			CancelURL:     getEnv("PAYMENT_CANCEL_URL", "https://admission.example.com/payment/cancel"),
			Currency:      getEnv("PAYMENT_CURRENCY", "ars"),
		},
		Tickets: TicketConfig{
			ReservationWindow: time.Duration(getEnvInt("RESERVATION_WINDOW_MINUTES", 30)) * time.Minute,
			CodeMaxAttempts:   getEnvInt("CODE_MAX_ATTEMPTS", 12),
			GeneralPrice:      getEnvFloat("GENERAL_PRICE", 1500),
			QRSecretKey:       getEnv("QR_SECRET_KEY", ""),
		},
		Sweep: SweepConfig{
			Interval:    time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 5)) * time.Minute,
			BatchSize:   getEnvInt("SWEEP_BATCH_SIZE", 1000),
			BackfillAge: time.Duration(getEnvInt("BACKFILL_AGE_HOURS", 24)) * time.Hour,
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
