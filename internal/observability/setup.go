package observability

import (
	"context"
	"net/http"

	"github.com/honeynil/RecycleRewardsAdmin/internal/config"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(serviceName string, cfg *config.Config) (func(context.Context) error, http.Handler) {
	observability.InitLogger()
	observability.InitMetrics(cfg.MetricsAddr)
	tracerShutdown := observability.InitTracing(serviceName, cfg.OTLPEndpoint)
	return tracerShutdown, promhttp.Handler()
}
