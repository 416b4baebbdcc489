package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port        string
	ServiceName string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	Addr string
}

type CatalogConfig struct {
	BaseURL             string
	ValidateTimeout     time.Duration
	SyncTimeout         time.Duration
	SyncLimit           int
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

type OrdersConfig struct {
	// AvailabilityPolicy selects how order creation behaves when the
	// catalog service cannot be reached: "degrade-open" accepts the
	// order, "enforce" rejects it.
	AvailabilityPolicy string
}

type EventsConfig struct {
	WebhookURL     string
	PublishTimeout time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Catalog  CatalogConfig
	Orders   OrdersConfig
	Events   EventsConfig
}

// NewConfig reads configuration from the environment, loading a .env file
// first if one is present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.Port = getenv("APP_PORT", "8080")
	cfg.App.ServiceName = getenv("SERVICE_NAME", "ordering-service")

	cfg.Postgres.Host = os.Getenv("DB_HOST")
	if cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("config: DB_HOST is required")
	}
	cfg.Postgres.Port = getenv("DB_PORT", "5432")
	cfg.Postgres.User = os.Getenv("DB_USER")
	if cfg.Postgres.User == "" {
		return nil, fmt.Errorf("config: DB_USER is required")
	}
	cfg.Postgres.Password = os.Getenv("DB_PASSWORD")
	if cfg.Postgres.Password == "" {
		return nil, fmt.Errorf("config: DB_PASSWORD is required")
	}
	cfg.Postgres.DBName = os.Getenv("DB_NAME")
	if cfg.Postgres.DBName == "" {
		return nil, fmt.Errorf("config: DB_NAME is required")
	}
	cfg.Postgres.SSLMode = getenv("DB_SSLMODE", "disable")
	cfg.Postgres.MaxConns = int32(getenvInt("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(getenvInt("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = getenvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Postgres.MigrationsPath = getenv("DB_MIGRATIONS_PATH", "migrations")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")

	cfg.Catalog.BaseURL = os.Getenv("CATALOG_SERVICE_URL")
	if cfg.Catalog.BaseURL == "" {
		return nil, fmt.Errorf("config: CATALOG_SERVICE_URL is required")
	}
	cfg.Catalog.ValidateTimeout = getenvDuration("CATALOG_VALIDATE_TIMEOUT", 3*time.Second)
	cfg.Catalog.SyncTimeout = getenvDuration("CATALOG_SYNC_TIMEOUT", 10*time.Second)
	cfg.Catalog.SyncLimit = getenvInt("CATALOG_SYNC_LIMIT", 1000)
	cfg.Catalog.BreakerMaxFailures = getenvInt("CATALOG_BREAKER_MAX_FAILURES", 3)
	cfg.Catalog.BreakerResetTimeout = getenvDuration("CATALOG_BREAKER_RESET_TIMEOUT", time.Minute)

	cfg.Orders.AvailabilityPolicy = getenv("ORDER_AVAILABILITY_POLICY", "degrade-open")

	cfg.Events.WebhookURL = os.Getenv("EVENT_SERVICE_URL")
	cfg.Events.PublishTimeout = getenvDuration("EVENT_PUBLISH_TIMEOUT", time.Second)
	cfg.Events.KafkaBrokers = splitCSV(os.Getenv("EVENT_KAFKA_BROKERS"))
	cfg.Events.KafkaTopic = getenv("EVENT_KAFKA_TOPIC", "order-events")

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
