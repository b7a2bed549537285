package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	Mongo Mongo

	RedisAddr     string
	RedisPassword string

	Postgres Postgres

	KafkaBrokers []string

	PaymentProvider string // "fake" or "stripe"
	StripeSecretKey string
	Currency        string

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
	AbandonAfter      time.Duration
}

type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// Mongo holds the cart store connection and pool settings.
type Mongo struct {
	URI                    string
	Database               string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

// Load reads the environment, after loading .env when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		MaxRequestBodySize: 1 << 20, // 1MB
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Mongo: Mongo{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB_NAME", "ticketing"),
		},
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		Postgres: Postgres{
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ticketing"),
		},
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		PaymentProvider: strings.ToLower(getEnv("PAYMENT_PROVIDER", "fake")),
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		Currency:        strings.ToLower(getEnv("CURRENCY", "usd")),
	}

	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Postgres.Port = port

	pools := []struct {
		key  string
		def  string
		dest *uint64
	}{
		{"MONGO_MAX_POOL_SIZE", "100", &cfg.Mongo.MaxPoolSize},
		{"MONGO_MIN_POOL_SIZE", "10", &cfg.Mongo.MinPoolSize},
	}
	for _, p := range pools {
		v, err := strconv.ParseUint(getEnv(p.key, p.def), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", p.key, err)
		}
		*p.dest = v
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"REQUEST_TIMEOUT", "30s", &cfg.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
		{"MONGO_CONNECT_TIMEOUT", "10s", &cfg.Mongo.ConnectTimeout},
		{"MONGO_SERVER_SELECTION_TIMEOUT", "5s", &cfg.Mongo.ServerSelectionTimeout},
		{"RECONCILE_INTERVAL", "1m", &cfg.ReconcileInterval},
		{"RECONCILE_GRACE", "2m", &cfg.ReconcileGrace},
		{"ABANDON_AFTER", "24h", &cfg.AbandonAfter},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dest = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PaymentProvider {
	case "fake":
	case "stripe":
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	if c.Mongo.MaxPoolSize > 0 && c.Mongo.MinPoolSize > c.Mongo.MaxPoolSize {
		return fmt.Errorf("MONGO_MIN_POOL_SIZE must not exceed MONGO_MAX_POOL_SIZE")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
