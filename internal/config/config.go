package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN         string
	RedisAddr           string
	KafkaBrokers        []string
	NotificationsTopic  string
	ReconciliationTopic string
	JWTSecret           string
	HTTPAddr            string
	MetricsAddr         string
	OTLPEndpoint        string
	SessionTTL          time.Duration
	RequestLockTTL      time.Duration
	ResubscribeBackoff  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKER")),
		NotificationsTopic:  os.Getenv("NOTIFICATIONS_TOPIC"),
		ReconciliationTopic: os.Getenv("RECONCILIATION_TOPIC"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		HTTPAddr:            os.Getenv("HTTP_ADDR"),
		MetricsAddr:         os.Getenv("METRICS_ADDR"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SessionTTL:          durationEnv("SESSION_TTL", 12*time.Hour),
		RequestLockTTL:      durationEnv("REQUEST_LOCK_TTL", 10*time.Second),
		ResubscribeBackoff:  durationEnv("RESUBSCRIBE_BACKOFF", 2*time.Second),
	}

	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=rewards sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.NotificationsTopic == "" {
		cfg.NotificationsTopic = "notifications.changes"
	}
	if cfg.ReconciliationTopic == "" {
		cfg.ReconciliationTopic = "redemptions.reconciliation"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	slog.Info("config loaded",
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"notifications_topic", cfg.NotificationsTopic,
		"reconciliation_topic", cfg.ReconciliationTopic,
		"http_addr", cfg.HTTPAddr)
	return cfg
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
