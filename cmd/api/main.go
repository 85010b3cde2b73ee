package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"github.com/angelmondragon/mangopay-gateway/api/controllers"
	"github.com/angelmondragon/mangopay-gateway/api/routes"
	"github.com/angelmondragon/mangopay-gateway/internal/access"
	"github.com/angelmondragon/mangopay-gateway/internal/dispatch"
	"github.com/angelmondragon/mangopay-gateway/internal/gateway"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	mangopaywebhook "github.com/angelmondragon/mangopay-gateway/internal/webhooks/mangopay"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows/counters"
	"github.com/angelmondragon/mangopay-gateway/pkg/bigquery"
	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	"github.com/angelmondragon/mangopay-gateway/pkg/db"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
	"github.com/angelmondragon/mangopay-gateway/pkg/metrics"
	"github.com/angelmondragon/mangopay-gateway/pkg/migrate"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox"
	"github.com/angelmondragon/mangopay-gateway/pkg/redis"
	"github.com/angelmondragon/mangopay-gateway/pkg/telemetry"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	flushTraces, err := telemetry.SetupTracing(cfg.Telemetry, os.Stdout)
	if err != nil {
		logg.Error(context.Background(), "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := flushTraces(ctx); err != nil {
			logg.Error(ctx, "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	ready := map[string]controllers.Pinger{"database": dbClient}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		ready["redis"] = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured; rate limits, idempotency, delivery guards and counter locks disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	processorMetrics := metrics.NewProcessorMetrics(registry)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	marketClient, err := marketplace.NewClient(cfg.Marketplace.BaseURL, cfg.Marketplace.SystemKey, cfg.Marketplace.Timeout)
	if err != nil {
		logg.Error(context.Background(), "failed to build marketplace client", err)
		os.Exit(1)
	}
	requesters, err := resources.NewRequesters(marketClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build marketplace requesters", err)
		os.Exit(1)
	}
	resourceService, err := resources.NewService(resources.ServiceParams{
		Requesters: requesters,
		Transport:  marketClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build resource service", err)
		os.Exit(1)
	}

	factory, err := processor.NewFactory(processor.FactoryParams{
		Config:     resourceService.Config(),
		Observer:   processorMetrics,
		Timeout:    cfg.Marketplace.ProcessorTimeout,
		Production: cfg.App.IsProd(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build processor factory", err)
		os.Exit(1)
	}

	counterParams := counters.Params{
		TTL:         cfg.Counters.LockTTL,
		MaxAttempts: cfg.Counters.MaxAttempts,
		RetryDelay:  cfg.Counters.RetryDelay,
		Logger:      logg,
	}
	if redisClient != nil {
		counterParams.Store = redisClient
	}
	counterAdjuster := counters.NewAdjuster(counterParams)

	policy, err := access.NewPolicy(access.PolicyParams{
		Resources: resourceService,
		Counters:  counterAdjuster,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build access policy", err)
		os.Exit(1)
	}

	engineParams := workflows.Params{
		Resources: resourceService,
		Counters:  counterAdjuster,
		Tracer:    otel.Tracer(cfg.Telemetry.ServiceName + "/workflows"),
		Logger:    logg,
	}
	if cfg.FeatureFlags.SponsorshipFacts {
		bq, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bq.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		writer, err := bigquery.NewSponsorshipWriter(bq, cfg.BigQuery.SponsorshipTable, bigquery.RetryPolicy{})
		if err != nil {
			logg.Error(context.Background(), "failed to build sponsorship fact writer", err)
			os.Exit(1)
		}
		engineParams.Facts = writer
		ready["bigquery"] = bq
	}
	engine, err := workflows.NewEngine(engineParams)
	if err != nil {
		logg.Error(context.Background(), "failed to build workflow engine", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(dispatch.Params{
		Tracer:   otel.Tracer(cfg.Telemetry.ServiceName + "/dispatch"),
		Observer: processorMetrics,
		Logger:   logg,
	})
	gatewayService, err := gateway.NewService(gateway.ServiceParams{
		Resources:  resourceService,
		Factory:    factory,
		Policy:     policy,
		Workflows:  engine,
		Dispatcher: dispatcher,
		Observer:   processorMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway service", err)
		os.Exit(1)
	}

	webhookParams := mangopaywebhook.ServiceParams{
		Events:   resourceService,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		TxRunner: dbClient,
		Metrics:  webhookMetrics,
		Logger:   logg,
	}
	if redisClient != nil {
		guard, err := mangopaywebhook.NewDeliveryGuard(redisClient, cfg.Webhooks.GuardTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to build webhook delivery guard", err)
			os.Exit(1)
		}
		webhookParams.Guard = guard
	}
	webhookService, err := mangopaywebhook.NewService(webhookParams)
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	router := routes.NewRouter(routes.RouterParams{
		Config:      cfg,
		Logger:      logg,
		Gateway:     gatewayService,
		Webhooks:    webhookService,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Redis:       redisClient,
		Ready:       ready,
		Gatherer:    registry,
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
