package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matthewbaird/followup/internal/activity"
	"github.com/matthewbaird/followup/internal/advisor"
	"github.com/matthewbaird/followup/internal/cadence"
	"github.com/matthewbaird/followup/internal/clock"
	"github.com/matthewbaird/followup/internal/config"
	"github.com/matthewbaird/followup/internal/database"
	"github.com/matthewbaird/followup/internal/event"
	"github.com/matthewbaird/followup/internal/eventbus"
	"github.com/matthewbaird/followup/internal/feed"
	"github.com/matthewbaird/followup/internal/handler"
	"github.com/matthewbaird/followup/internal/ingest"
	"github.com/matthewbaird/followup/internal/ledger"
	"github.com/matthewbaird/followup/internal/metrics"
	"github.com/matthewbaird/followup/internal/reminders"
	"github.com/matthewbaird/followup/internal/scheduler"
	"github.com/matthewbaird/followup/internal/seed"
	"github.com/matthewbaird/followup/internal/server"
	"github.com/matthewbaird/followup/internal/tiers"
	"github.com/matthewbaird/followup/internal/tracing"
	"github.com/matthewbaird/followup/internal/types"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracerProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	db, dialect, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	logger.Info("database migrated", zap.String("dialect", string(dialect)))

	clk := clock.System{}
	led := ledger.New(ledger.NewSQLStore(db, dialect), clk)
	registry := tiers.NewRegistry(tiers.NewSQLStore(db, dialect), led, logger)

	if !cfg.Tiers.SkipSeed {
		catalog, name := tiers.DefaultCatalog, "catalog.cue"
		if cfg.Tiers.CatalogPath != "" {
			if catalog, err = os.ReadFile(cfg.Tiers.CatalogPath); err != nil {
				logger.Fatal("failed to read tier catalog", zap.Error(err))
			}
			name = cfg.Tiers.CatalogPath
		}
		if _, err := seed.SeedTiers(ctx, registry, catalog, name, logger); err != nil {
			logger.Fatal("failed to seed tiers", zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	var cache reminders.Cache = reminders.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		rc, err := reminders.NewRedisCache(ctx, reminders.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		cache = rc
		logger.Info("shared worklist cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	evaluator := cadence.New()
	hub := feed.NewHub(cacheSnapshot{cache}, logger)
	sched := scheduler.New(scheduler.Config{
		Computer: reminders.New(reminders.Config{
			Tiers:     registry,
			Customers: led,
			Evaluator: evaluator,
			Clock:     clk,
			Workers:   cfg.Scheduler.Workers,
			Logger:    logger,
		}),
		Cache:       cache,
		Observer:    m,
		Broadcaster: hub,
		Interval:    cfg.Scheduler.Interval,
		ScanTimeout: cfg.Scheduler.ScanTimeout,
		Logger:      logger,
	})

	activityStore := activity.NewSQLStore(db, dialect)
	bus := eventbus.New(256, logger)
	bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	bus.Subscribe("refresh", eventbus.NewRefreshConsumer(sched))
	bus.Subscribe("activity", activity.NewIndexer(activityStore))

	recorder := event.NewContactRecorder(led)
	recorder.SetPublisher(bus)

	bus.Start(ctx)
	go sched.Start(ctx)

	var consumer *ingest.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer = ingest.NewConsumer(
			ingest.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID),
			recorder, m, logger)
		consumer.Start(ctx)
		logger.Info("contact ingest enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	handlers := handler.Handlers{
		Tiers: handler.NewTierHandler(registry, recorder, clk, logger),
		Customers: handler.NewCustomerHandler(handler.CustomerDeps{
			Ledger:    led,
			Tiers:     registry,
			Evaluator: evaluator,
			Recorder:  recorder,
			Advisor:   advisor.New(registry, led, logger),
			Activity:  activityStore,
			Clock:     clk,
			Metrics:   m,
			Logger:    logger,
		}),
		Reminders:      handler.NewReminderHandler(sched, logger),
		Feed:           hub,
		RefreshLimiter: handler.NewRateLimiter(cfg.Refresh.RatePerSecond, cfg.Refresh.Burst, logger),
	}

	logger.Info("starting follow-up server", zap.String("addr", cfg.Addr()))
	err = server.Run(ctx, server.Config{
		Addr:            cfg.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Handlers:        handlers,
		Metrics:         m,
		Gatherer:        reg,
		Ready:           db.PingContext,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("server error", zap.Error(err))
	}

	// Stop producers before the bus so no event is published after it closes.
	if consumer != nil {
		consumer.Stop()
	}
	bus.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", zap.Error(err))
	}
	logger.Info("follow-up server shutdown complete")
}

// cacheSnapshot serves the feed's initial snapshot straight from the cache.
type cacheSnapshot struct {
	cache reminders.Cache
}

func (c cacheSnapshot) Latest(ctx context.Context) (types.Worklist, bool, error) {
	return c.cache.Get(ctx)
}

func initLogger(cfg config.LoggingConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
