package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	"github.com/angelmondragon/mangopay-gateway/pkg/db"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
	"github.com/angelmondragon/mangopay-gateway/pkg/migrate"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox/registry"
	"github.com/angelmondragon/mangopay-gateway/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	params := ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Recorder:      resourceService,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
	}

	if cfg.FeatureFlags.PublishToPubSub {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		params.PubSub = pubsubClient
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	params.Registry = eventRegistry

	service, err := NewService(params)
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"publish":     cfg.FeatureFlags.PublishToPubSub,
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
