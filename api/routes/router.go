package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/mangopay-gateway/api/controllers"
	"github.com/angelmondragon/mangopay-gateway/api/middleware"
	"github.com/angelmondragon/mangopay-gateway/internal/gateway"
	mangopaywebhook "github.com/angelmondragon/mangopay-gateway/internal/webhooks/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/redis"
)

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type deadLetterLister interface {
	ListByPlatform(ctx context.Context, platformID, env string, limit int) ([]models.OutboxDLQ, error)
}

// RouterParams groups what the HTTP surface is built from. Redis, Gatherer
// and DeadLetters are optional.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Gateway     gateway.Service
	Webhooks    *mangopaywebhook.Service
	DeadLetters deadLetterLister
	Redis       *redis.Client
	Ready       map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, params.Ready))
	})
	if params.Gatherer != nil {
		r.Method(http.MethodGet, cfg.Telemetry.MetricsRoute, promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	var (
		limiter     windowLimiter
		idempotency redis.IdempotencyStore
	)
	if params.Redis != nil {
		limiter = params.Redis
		idempotency = params.Redis
	}

	r.Route("/integrations/mangopay", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(middleware.RateLimitPolicy{
				Name:   "webhook",
				Window: cfg.RateLimit.WebhookWindow,
				Limit:  cfg.RateLimit.WebhookLimit,
				Key:    middleware.RoutingBucket("publicPlatformId"),
			}, limiter, logg))
			hook := controllers.MangopayWebhook(params.Webhooks, logg)
			r.Get("/webhooks/{publicPlatformId}", hook)
			r.Post("/webhooks/{publicPlatformId}", hook)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RateLimit(middleware.RateLimitPolicy{
				Name:   "request",
				Window: cfg.RateLimit.RequestWindow,
				Limit:  cfg.RateLimit.RequestLimit,
				Key:    middleware.CallerBucket,
			}, limiter, logg))
			r.Use(middleware.Idempotency(idempotency, logg))
			r.Post("/request", controllers.ProcessorRequest(params.Gateway, logg))
			if params.DeadLetters != nil {
				r.Get("/dead-letters", controllers.DeadLetters(params.DeadLetters, logg))
			}
		})
	})

	return r
}
