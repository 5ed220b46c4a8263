package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/RecycleRewardsAdmin/internal/api"
	"github.com/honeynil/RecycleRewardsAdmin/internal/config"
	"github.com/honeynil/RecycleRewardsAdmin/internal/handler"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/kafka"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/redis"
	"github.com/honeynil/RecycleRewardsAdmin/internal/notifications"
	"github.com/honeynil/RecycleRewardsAdmin/internal/observability"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository/postgres"
	service "github.com/honeynil/RecycleRewardsAdmin/internal/services"
	"github.com/honeynil/RecycleRewardsAdmin/internal/session"
)

func main() {
	cfg := config.Load()

	shutdown, metricsHandler := observability.Setup("recycle-rewards-admin", cfg)
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Error("failed to shut down tracing", "error", err)
		}
	}()

	ctx := context.Background()

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close kafka producer", "error", err)
		}
	}()

	sessions := session.NewManager(postgres.NewAdminRepository(db), redisClient, cfg.JWTSecret, cfg.SessionTTL)

	svc := service.NewRedemptionService(
		postgres.NewTransactor(db),
		postgres.NewRedemptionRepository(db),
		postgres.NewBalanceRepository(db),
		postgres.NewLedgerRepository(db),
		sessions,
		redisClient,
		producer,
		cfg.ReconciliationTopic,
		cfg.RequestLockTTL,
	)
	// pending reconciliation events go out before the producer closes
	defer svc.Flush()

	viewer := notifications.NewViewer(
		kafka.NewChangeFeed(cfg.KafkaBrokers, cfg.NotificationsTopic),
		postgres.NewNotificationRepository(db),
		cfg.ResubscribeBackoff,
	)

	h := handler.NewHandler(svc, sessions, sessions, viewer)
	router := api.SetupRouter(h, sessions, metricsHandler)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
