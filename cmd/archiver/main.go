package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/app"
	"github.com/ProductBay/vynce/internal/telemetry"
	"github.com/ProductBay/vynce/internal/worker/archive"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())
	lg := container.Logger

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "archiver")
	if err != nil {
		lg.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		lg.Fatal("failed to ensure kafka topics", zap.Error(err))
	}
	if err := container.Migrate(ctx); err != nil {
		lg.Fatal("failed to apply schema", zap.Error(err))
	}

	services, err := container.Services()
	if err != nil {
		lg.Fatal("failed to build services", zap.Error(err))
	}

	kcfg := container.Config.Kafka
	reader := container.Kafka.NewReader(kcfg.EventsTopic, kcfg.ConsumerGroupID)
	worker := archive.New(reader, services.History, lg)

	lg.Info("archiver consuming", zap.String("topic", kcfg.EventsTopic), zap.String("group", kcfg.ConsumerGroupID))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("worker terminated", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
