package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"saldopay/internal/money"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort string

	// DebitPriceCents is the fixed price charged by the debit action.
	DebitPriceCents int64
	// SignupBalanceCents seeds every newly registered account.
	SignupBalanceCents int64
	// IdempotencyTTL bounds how long processed-event marks are retained.
	IdempotencyTTL time.Duration
}

// New loads and validates configuration from environment variables.
// A .env file is honoured when present; real environment variables win.
func New() (*Config, error) {
	_ = godotenv.Load()

	debitPrice, err := getEnvMoney("SALDOPAY_DEBIT_PRICE", "20.00")
	if err != nil {
		return nil, err
	}
	signupBalance, err := getEnvMoney("SALDOPAY_SIGNUP_BALANCE", "100.00")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBUser:             os.Getenv("SALDOPAY_POSTGRES_USER"),
		DBPass:             os.Getenv("SALDOPAY_POSTGRES_PASSWORD"),
		DBHost:             os.Getenv("SALDOPAY_POSTGRES_HOST"),
		DBPort:             os.Getenv("SALDOPAY_POSTGRES_PORT"),
		DBName:             os.Getenv("SALDOPAY_POSTGRES_DB"),
		SSLMode:            os.Getenv("SALDOPAY_POSTGRES_SSLMODE"),
		RedisHost:          os.Getenv("SALDOPAY_REDIS_HOST"),
		RedisPort:          os.Getenv("SALDOPAY_REDIS_PORT"),
		NatsHost:           os.Getenv("SALDOPAY_NATS_HOST"),
		NatsPort:           os.Getenv("SALDOPAY_NATS_PORT"),
		ApiPort:            getEnv("SALDOPAY_API_PORT", "8080"),
		DebitPriceCents:    debitPrice,
		SignupBalanceCents: signupBalance,
		IdempotencyTTL:     getEnvDuration("SALDOPAY_IDEMPOTENCY_TTL", 7*24*time.Hour),
	}

	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: SALDOPAY_POSTGRES_USER/HOST/DB/SSLMODE")
	}
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: SALDOPAY_REDIS_HOST/PORT")
	}
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: SALDOPAY_NATS_HOST/PORT")
	}
	if cfg.DebitPriceCents <= 0 {
		return nil, fmt.Errorf("SALDOPAY_DEBIT_PRICE must be positive")
	}
	if cfg.SignupBalanceCents < 0 {
		return nil, fmt.Errorf("SALDOPAY_SIGNUP_BALANCE must not be negative")
	}
	// SET ... EX rejects non-positive expirations, so a zero TTL would turn
	// every mutation into a storage error at runtime.
	if cfg.IdempotencyTTL <= 0 {
		return nil, fmt.Errorf("SALDOPAY_IDEMPOTENCY_TTL must be positive")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvMoney(key, fallback string) (int64, error) {
	v := getEnv(key, fallback)
	cents, err := money.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return cents, nil
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
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
