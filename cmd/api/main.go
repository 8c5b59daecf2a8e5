package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/api"
	"github.com/ProductBay/vynce/internal/app"
	"github.com/ProductBay/vynce/internal/telemetry"
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

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "api")
	if err != nil {
		lg.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.Prepare(ctx); err != nil {
		lg.Fatal("failed to prepare dialer", zap.Error(err))
	}

	services, err := container.Services()
	if err != nil {
		lg.Fatal("failed to build services", zap.Error(err))
	}
	publisher, err := container.EventPublisher()
	if err != nil {
		lg.Fatal("failed to build event publisher", zap.Error(err))
	}
	handlerSet, err := container.HandlerSet()
	if err != nil {
		lg.Fatal("failed to build handlers", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := services.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("scheduler stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("event publisher stopped", zap.Error(err))
		}
	}()

	server := api.NewServer(container.Config.HTTP, handlerSet)
	lg.Info("vynce api listening",
		zap.Int("port", container.Config.HTTP.Port),
		zap.String("provider", container.Config.Vonage.Provider))
	if err := server.Start(ctx); err != nil {
		lg.Error("server terminated", zap.Error(err))
		cancel()
	}

	<-ctx.Done()
	if stopped := services.Bulk.Stop(); stopped > 0 {
		lg.Info("bulk queue discarded on shutdown", zap.Int("pending", stopped))
	}
	wg.Wait()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
