package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Application struct {
	Name        string
	Environment string
	Port        int
	Debug       bool
	Timeout     time.Duration
	BaseURL     string
}

type Postgres struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type Redis struct {
	Address  string
	Password string
	DB       int
}

type Kafka struct {
	BootstrapServers string
	ClientID         string
}

type JWT struct {
	PrivateKey string
	PublicKey  string
}

type Paygate struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

type Checkout struct {
	IntentTTL      time.Duration
	LockTTL        time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
}

type GCP struct {
	ProjectID      string
	ServiceAccount []byte
	TasksLocation  string
}

type CORS struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	MaxAge           int
	AllowCredentials bool
}

type Config struct {
	Application Application
	Postgres    Postgres
	Redis       Redis
	Kafka       Kafka
	JWT         JWT
	Paygate     Paygate
	Checkout    Checkout
	GCP         GCP
	CORS        CORS
}

var (
	once sync.Once
	c    *Config
)

func Get() *Config {
	once.Do(func() {
		godotenv.Load()

		c = &Config{
			Application: Application{
				Name:        getString("APP_NAME", "lc-checkout"),
				Environment: getString("APP_ENVIRONMENT", "development"),
				Port:        getInt("APP_PORT", 9030),
				Debug:       getBool("APP_DEBUG", false),
				Timeout:     getDuration("APP_TIMEOUT", 10*time.Second),
				BaseURL:     getString("APP_BASE_URL", "http://localhost:9030"),
			},
			Postgres: Postgres{
				DSN:             mustString("POSTGRES_DSN"),
				MaxOpenConns:    getInt("POSTGRES_MAX_OPEN_CONNS", 25),
				MaxIdleConns:    getInt("POSTGRES_MAX_IDLE_CONNS", 5),
				ConnMaxLifetime: getDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
				AutoMigrate:     getBool("POSTGRES_AUTO_MIGRATE", false),
			},
			Redis: Redis{
				Address:  mustString("REDIS_ADDRESS"),
				Password: getString("REDIS_PASSWORD", ""),
				DB:       getInt("REDIS_DB", 0),
			},
			Kafka: Kafka{
				BootstrapServers: mustString("KAFKA_BOOTSTRAP_SERVERS"),
				ClientID:         getString("KAFKA_CLIENT_ID", "lc-checkout"),
			},
			JWT: JWT{
				PrivateKey: getString("JWT_PRIVATE_KEY", ""),
				PublicKey:  mustString("JWT_PUBLIC_KEY"),
			},
			Paygate: Paygate{
				BaseURL:       mustString("PAYGATE_BASE_URL"),
				APIKey:        mustString("PAYGATE_API_KEY"),
				WebhookSecret: mustString("PAYGATE_WEBHOOK_SECRET"),
			},
			Checkout: Checkout{
				IntentTTL:      getDuration("CHECKOUT_INTENT_TTL", 5*time.Minute),
				LockTTL:        getDuration("CHECKOUT_LOCK_TTL", 4*time.Minute),
				SweepInterval:  getDuration("CHECKOUT_SWEEP_INTERVAL", 30*time.Second),
				SweepBatchSize: getInt("CHECKOUT_SWEEP_BATCH_SIZE", 100),
			},
			GCP: GCP{
				ProjectID:      getString("GCP_PROJECT_ID", ""),
				ServiceAccount: []byte(getString("GCP_SERVICE_ACCOUNT", "")),
				TasksLocation:  getString("GCP_TASKS_LOCATION", "asia-southeast2"),
			},
			CORS: CORS{
				AllowedOrigins:   getSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   getSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
				AllowedHeaders:   getSlice("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
				ExposedHeaders:   getSlice("CORS_EXPOSED_HEADERS", []string{"X-Trace-Id"}),
				MaxAge:           getInt("CORS_MAX_AGE", 300),
				AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
			},
		}
	})

	return c
}

func mustString(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool for %s: %q", key, v)
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}

func getSlice(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
