package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Env      string
	Logs     LogConfig
	HTTP     HTTPConfig
	Stripe   StripeConfig
	Firebase FirebaseConfig
	Store    StoreConfig
	DB       PostgresConfig
	Redis    RedisConfig
	Notify   NotifyConfig
}

type LogConfig struct {
	Style string
	Level string
}

type HTTPConfig struct {
	Addr            string
	AllowOrigins    []string
	InternalAPIKey  string
	DefaultTimezone string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	FrontendURL   string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

type StoreConfig struct {
	Backend string // firestore, postgres or memory
}

type PostgresConfig struct {
	URL      string
	MaxConns int
}

type RedisConfig struct {
	Addr      string
	Password  string
	LedgerTTL time.Duration
}

type NotifyConfig struct {
	InactiveAfter time.Duration
	Workers       int
	Title         string
	Body          string
}

const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

func LoadConfig() (*Config, error) {
	maxConns, err := intEnv("POSTGRES_MAX_CONNS", 5)
	if err != nil {
		return nil, err
	}
	workers, err := intEnv("NOTIFY_WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	inactiveAfter, err := durationEnv("NOTIFY_INACTIVE_AFTER", 48*time.Hour)
	if err != nil {
		return nil, err
	}
	ledgerTTL, err := durationEnv("REDIS_LEDGER_TTL", 72*time.Hour)
	if err != nil {
		return nil, err
	}

	backend := strings.ToLower(envOr("STORE_BACKEND", BackendFirestore))
	switch backend {
	case BackendFirestore, BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}

	cfg := &Config{
		Env: envOr("ENV", "local"),
		Logs: LogConfig{
			Style: envOr("LOG_STYLE", "json"),
			Level: envOr("LOG_LEVEL", "info"),
		},
		HTTP: HTTPConfig{
			Addr:            envOr("HTTP_ADDR", "0.0.0.0:8080"),
			AllowOrigins:    splitList(envOr("CORS_ALLOW_ORIGINS", "*")),
			InternalAPIKey:  os.Getenv("INTERNAL_API_KEY"),
			DefaultTimezone: envOr("DEFAULT_TIMEZONE", "America/Mexico_City"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceID:       os.Getenv("STRIPE_PRICE_ID"),
			FrontendURL:   os.Getenv("FRONTEND_URL"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		Store: StoreConfig{
			Backend: backend,
		},
		DB: PostgresConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: maxConns,
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			LedgerTTL: ledgerTTL,
		},
		Notify: NotifyConfig{
			InactiveAfter: inactiveAfter,
			Workers:       workers,
			Title:         envOr("NOTIFY_TITLE", "Desviciar"),
			Body:          envOr("NOTIFY_BODY", "Llevas un tiempo sin registrar tu progreso. Tu racha te espera."),
		},
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
