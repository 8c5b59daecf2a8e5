// Package app wires configuration, infrastructure and services into runnable components.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ProductBay/vynce/internal/api/handlers"
	"github.com/ProductBay/vynce/internal/auth"
	"github.com/ProductBay/vynce/internal/callstore"
	"github.com/ProductBay/vynce/internal/config"
	"github.com/ProductBay/vynce/internal/domain"
	"github.com/ProductBay/vynce/internal/events"
	"github.com/ProductBay/vynce/internal/infra/db"
	"github.com/ProductBay/vynce/internal/infra/redis"
	"github.com/ProductBay/vynce/internal/metrics"
	"github.com/ProductBay/vynce/internal/queue"
	"github.com/ProductBay/vynce/internal/repository"
	pgrepo "github.com/ProductBay/vynce/internal/repository/postgres"
	redisrepo "github.com/ProductBay/vynce/internal/repository/redis"
	scyllarepo "github.com/ProductBay/vynce/internal/repository/scylla"
	"github.com/ProductBay/vynce/internal/scheduler"
	"github.com/ProductBay/vynce/internal/service/bulk"
	callsvc "github.com/ProductBay/vynce/internal/service/call"
	"github.com/ProductBay/vynce/internal/service/history"
	"github.com/ProductBay/vynce/internal/service/library"
	settingssvc "github.com/ProductBay/vynce/internal/service/settings"
	"github.com/ProductBay/vynce/internal/service/usage"
	"github.com/ProductBay/vynce/internal/service/webhook"
	"github.com/ProductBay/vynce/internal/telephony"
	telephonyMock "github.com/ProductBay/vynce/internal/telephony/mock"
	"github.com/ProductBay/vynce/internal/telephony/vonage"
	"github.com/ProductBay/vynce/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Collector

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	base context.Context

	// lazily initialised components
	components struct {
		once         sync.Once
		err          error
		repositories *repositories
		services     *services
		events       *eventBus
	}
}

type repositories struct {
	Users     repository.UserRepository
	Scripts   repository.ScriptRepository
	Voicemail repository.VoicemailRepository
	Stats     repository.StatsRepository
	Archive   repository.CallArchive
	Settings  repository.SettingsStore
	Schedules repository.ScheduleStore
}

type services struct {
	Store     *callstore.Store
	Telephony telephony.Client
	Settings  *settingssvc.Service
	Calls     *callsvc.Service
	Bulk      *bulk.Processor
	Webhooks  *webhook.Handler
	Library   *library.Service
	Scheduler *scheduler.Scheduler
	History   *history.Service
	Tokens    *auth.Manager
	Accounts  *auth.Service
	Usage     *usage.Guard
}

type eventBus struct {
	Hub   *events.Hub
	Kafka *queue.EventPublisher
}

// Build loads configuration and connects to every backing service. ctx bounds the
// connection attempts and every bulk batch started later.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		_ = pg.Close()
		_ = scylla.Close()
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		_ = pg.Close()
		_ = scylla.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Metrics:  metrics.NewCollector(),
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
		base:     ctx,
	}

	return container, nil
}

func (c *Container) initComponents() error {
	c.components.once.Do(func() {
		c.components.err = c.buildComponents()
	})
	return c.components.err
}

func (c *Container) buildComponents() error {
	cfg := c.Config

	repos := &repositories{
		Users:     pgrepo.NewUserRepository(c.Postgres.Pool()),
		Scripts:   pgrepo.NewScriptRepository(c.Postgres.DB()),
		Voicemail: pgrepo.NewVoicemailRepository(c.Postgres.DB()),
		Stats:     pgrepo.NewStatsRepository(c.Postgres.DB()),
		Archive:   scyllarepo.NewCallArchive(c.Scylla.Session(), cfg.Scylla.HistoryTTL),
		Settings:  redisrepo.NewSettingsStore(c.Redis),
		Schedules: redisrepo.NewScheduleStore(c.Redis),
	}

	bus := &eventBus{
		Hub:   events.NewHub(0),
		Kafka: queue.NewEventPublisher(c.Kafka, cfg.Kafka.EventsTopic, cfg.Kafka.PublishBuffer, c.Logger, c.Metrics),
	}
	publisher := events.Fanout(bus.Hub, bus.Kafka)

	client, err := newTelephony(cfg.Vonage)
	if err != nil {
		return fmt.Errorf("bootstrap telephony: %w", err)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("bootstrap auth: %w", err)
	}

	window, err := scheduler.ParseWindow(cfg.Scheduler.CallingWindowStart, cfg.Scheduler.CallingWindowEnd)
	if err != nil {
		return err
	}

	store := callstore.New(publisher, c.Logger)
	settings := settingssvc.NewService(repos.Settings, repos.Voicemail, defaultSettings(cfg), cfg.Bulk.MaxDelay, c.Logger)
	calls := callsvc.NewService(store, client, settings, callsvc.Callbacks{
		StatusURL: webhookURL(cfg.HTTP, "status"),
		AnswerURL: webhookURL(cfg.HTTP, "answer"),
	}, c.Metrics, c.Logger)
	processor := bulk.NewProcessor(calls, publisher, c.Metrics, c.Logger, bulk.Options{
		Delay:       cfg.Bulk.DefaultDelay,
		MaxDelay:    cfg.Bulk.MaxDelay,
		BaseContext: c.base,
	})
	settings.OnChange(func(s domain.Settings) {
		if err := processor.SetDelay(s.BulkDelay); err != nil {
			c.Logger.Warn("bulk delay not applied", zap.Duration("delay", s.BulkDelay), zap.Error(err))
		}
	})

	svcs := &services{
		Store:     store,
		Telephony: client,
		Settings:  settings,
		Calls:     calls,
		Bulk:      processor,
		Webhooks:  webhook.NewHandler(store, client, settings, c.Metrics, c.Logger),
		Library:   library.NewService(repos.Scripts, repos.Voicemail, c.Logger),
		Scheduler: scheduler.New(repos.Schedules, processor, settings, publisher, c.Logger, scheduler.Options{
			TickInterval: cfg.Scheduler.TickInterval,
			MaxBatchSize: cfg.Scheduler.MaxBatchSize,
			Window:       window,
		}),
		History:  history.NewService(repos.Archive, repos.Stats, repos.Users, c.Logger),
		Tokens:   tokens,
		Accounts: auth.NewService(repos.Users, tokens, cfg.Auth.BcryptCost, c.Logger),
		Usage:    usage.NewGuard(usage.NewLimiter(c.Redis), repos.Users),
	}

	c.components.repositories = repos
	c.components.services = svcs
	c.components.events = bus
	return nil
}

func newTelephony(cfg config.VonageConfig) (telephony.Client, error) {
	if cfg.Provider == "mock" {
		return telephonyMock.NewProvider(telephonyMock.Config{Latency: 50 * time.Millisecond}), nil
	}
	client, err := vonage.New(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func defaultSettings(cfg *config.Config) domain.Settings {
	return domain.Settings{
		CallerID:             cfg.Vonage.FromNumber,
		TimeZone:             "UTC",
		BulkDelay:            cfg.Bulk.DefaultDelay,
		VoicemailDropEnabled: cfg.Voicemail.Enabled,
		VoicemailTemplate:    cfg.Voicemail.DefaultMessage,
		AgentName:            cfg.Voicemail.AgentName,
		CompanyName:          cfg.Voicemail.CompanyName,
	}
}

func webhookURL(cfg config.HTTPConfig, name string) string {
	return strings.TrimRight(cfg.PublicBaseURL, "/") + "/webhooks/" + name
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() (*repositories, error) {
	if err := c.initComponents(); err != nil {
		return nil, err
	}
	return c.components.repositories, nil
}

// Services exposes initialized services.
func (c *Container) Services() (*services, error) {
	if err := c.initComponents(); err != nil {
		return nil, err
	}
	return c.components.services, nil
}

// EventPublisher exposes the Kafka mirror of dialer events.
func (c *Container) EventPublisher() (*queue.EventPublisher, error) {
	if err := c.initComponents(); err != nil {
		return nil, err
	}
	return c.components.events.Kafka, nil
}

// Migrate applies the relational and archive schemas.
func (c *Container) Migrate(ctx context.Context) error {
	if err := c.Postgres.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	if c.Config.Scylla.DisableInitSchema {
		return nil
	}
	if err := c.Scylla.EnsureSchema(ctx, scyllarepo.Schema...); err != nil {
		return fmt.Errorf("scylla schema: %w", err)
	}
	return nil
}

// Prepare readies the dialer for traffic: schemas, cached settings and the default
// script and voicemail library.
func (c *Container) Prepare(ctx context.Context) error {
	svcs, err := c.Services()
	if err != nil {
		return err
	}
	if err := c.Migrate(ctx); err != nil {
		return err
	}
	if err := c.EnsureTopics(ctx); err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	current, err := svcs.Settings.Load(ctx)
	if err != nil {
		return err
	}
	if err := svcs.Bulk.SetDelay(current.BulkDelay); err != nil {
		c.Logger.Warn("stored bulk delay rejected", zap.Duration("delay", current.BulkDelay), zap.Error(err))
	}
	if err := svcs.Library.SeedDefaults(ctx); err != nil {
		return err
	}
	return nil
}

// HandlerSet builds HTTP handlers with dependencies.
func (c *Container) HandlerSet() (*handlers.HandlerSet, error) {
	svcs, err := c.Services()
	if err != nil {
		return nil, err
	}
	return handlers.NewHandlerSet(handlers.Dependencies{
		Calls:     svcs.Calls,
		Bulk:      svcs.Bulk,
		Webhooks:  svcs.Webhooks,
		Settings:  svcs.Settings,
		Library:   svcs.Library,
		Scheduler: svcs.Scheduler,
		History:   svcs.History,
		Accounts:  svcs.Accounts,
		Tokens:    svcs.Tokens,
		Users:     c.components.repositories.Users,
		Usage:     svcs.Usage,
		Hub:       c.components.events.Hub,
		Metrics:   c.Metrics.Handler(),
		Health: map[string]handlers.HealthCheck{
			"postgres": c.Postgres.Ping,
			"scylla":   c.Scylla.Ping,
			"redis":    c.Redis.Ping,
		},
		Answer: handlers.AnswerConfig{
			Greeting:  c.Config.Vonage.Greeting,
			ForwardTo: c.Config.Vonage.ForwardTo,
			AMDURL:    webhookURL(c.Config.HTTP, "amd"),
		},
		Logger: c.Logger,

		MaxUploadRows: c.Config.Bulk.MaxUploadRows,
	}), nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.EventsTopic}, c.Config.Kafka.Partitions, 1)
}

// Close releases all held resources.
func (c *Container) Close(context.Context) error {
	var errs []error
	if bus := c.components.events; bus != nil && bus.Kafka != nil {
		if err := bus.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	return errors.Join(errs...)
}
