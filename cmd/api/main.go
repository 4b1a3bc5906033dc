package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hydrex-protocol/bribe-batcher/internal/auth"
	"github.com/hydrex-protocol/bribe-batcher/internal/config"
	"github.com/hydrex-protocol/bribe-batcher/internal/custody"
	"github.com/hydrex-protocol/bribe-batcher/internal/events"
	"github.com/hydrex-protocol/bribe-batcher/internal/handler"
	"github.com/hydrex-protocol/bribe-batcher/internal/infra/postgresql"
	"github.com/hydrex-protocol/bribe-batcher/internal/infra/postgresql/migrations"
	infraredis "github.com/hydrex-protocol/bribe-batcher/internal/infra/redis"
	"github.com/hydrex-protocol/bribe-batcher/internal/observability"
	"github.com/hydrex-protocol/bribe-batcher/internal/registry"
	"github.com/hydrex-protocol/bribe-batcher/internal/repository"
	"github.com/hydrex-protocol/bribe-batcher/internal/service"
	"github.com/hydrex-protocol/bribe-batcher/internal/sink"
	"github.com/hydrex-protocol/bribe-batcher/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	locker, err := infraredis.NewRedisLocker(rdb)
	if err != nil {
		logger.Fatal("redis locker initialization failed", zap.Error(err))
	}

	broker, err := events.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	publisher := events.NewRabbitMQPublisher(broker)
	defer publisher.Close() //nolint:errcheck

	treasury, err := custody.NewHTTPCustody(cfg.CustodyURL)
	if err != nil {
		logger.Fatal("custody client initialization failed", zap.Error(err))
	}

	sinks, err := sink.NewHTTPSink(cfg.SinkURL)
	if err != nil {
		logger.Fatal("sink client initialization failed", zap.Error(err))
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("auth verifier initialization failed", zap.Error(err))
	}

	clock, err := cfg.EpochClock()
	if err != nil {
		logger.Fatal("epoch clock initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	scheduler, err := service.NewScheduler(
		registry.New(),
		repository.NewGormJournalRepo(db),
		treasury,
		sinks,
		publisher,
		locker,
		clock,
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	scheduler.SetMetrics(metrics)

	if err := scheduler.Load(context.Background()); err != nil {
		logger.Fatal("batch journal replay failed", zap.Error(err))
	}

	executor, err := service.NewExecutor(scheduler, cfg.ExecutorInterval(), logger)
	if err != nil {
		logger.Fatal("executor initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "bribe-batcher",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterBatchRoutes(app, scheduler, verifier); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("bribe-batcher api started",
			zap.Int("port", cfg.APIPort),
			zap.Uint64("epoch", scheduler.CurrentEpoch()),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		logger.Info("executor started", zap.Duration("interval", cfg.ExecutorInterval()))
		return executor.Start(groupCtx)
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}
}
