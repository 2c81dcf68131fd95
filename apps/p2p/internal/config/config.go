package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DbURL                 string
	KafkaBroker           string
	KafkaTopic            string
	NotificationKey       string
	LedgerURL             string
	LedgerTimeout         time.Duration
	JWTSecret             string
	APIPort               int
	TransactionExpireTime time.Duration
	PublishInterval       time.Duration
	SchedulerPollInterval time.Duration
	SchedulerMaxAttempts  int
	ReleaseOnExpiry       bool
	CancelPolicy          string
}

// NewConfig loads configuration from environment variables
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Could not load .env file: %v", err)
	}

	return &Config{
		DbURL:                 getEnvOrFatal("DB_URL"),
		KafkaBroker:           getEnvOrFatal("KAFKA_BROKER"),
		KafkaTopic:            getEnvOrFatal("KAFKA_TOPIC"),
		NotificationKey:       getEnv("NOTIFICATION_KEY", "transaction_status_changed"),
		LedgerURL:             getEnvOrFatal("LEDGER_URL"),
		LedgerTimeout:         getEnvDuration("LEDGER_TIMEOUT", 10*time.Second),
		JWTSecret:             getEnvOrFatal("JWT_SECRET"),
		APIPort:               getEnvInt("API_PORT", 8080),
		TransactionExpireTime: time.Duration(getEnvInt("TRANSACTION_EXPIRE_TIME", 30)) * time.Minute,
		PublishInterval:       getEnvDuration("PUBLISH_INTERVAL", 3*time.Second),
		SchedulerPollInterval: getEnvDuration("SCHEDULER_POLL_INTERVAL", 5*time.Second),
		SchedulerMaxAttempts:  getEnvInt("SCHEDULER_MAX_ATTEMPTS", 5),
		ReleaseOnExpiry:       getEnvBool("RELEASE_ON_EXPIRY", false),
		CancelPolicy:          getEnv("CANCEL_POLICY", "buyer"),
	}
}

func getEnvOrFatal(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	log.Fatalf("environment variable %s not set", key)

	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("15s") or plain seconds ("15").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
