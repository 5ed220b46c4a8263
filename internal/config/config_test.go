package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"POSTGRES_DSN", "REDIS_ADDR", "KAFKA_BROKER", "NOTIFICATIONS_TOPIC", "RECONCILIATION_TOPIC", "JWT_SECRET", "HTTP_ADDR", "SESSION_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "notifications.changes", cfg.NotificationsTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKER", "k1:9092, k2:9092,")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("REQUEST_LOCK_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.RequestLockTTL)
}
