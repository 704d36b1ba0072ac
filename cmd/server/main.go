package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/config"
	"github.com/iliyamo/stage-ticketing/internal/database"
	"github.com/iliyamo/stage-ticketing/internal/handler"
	"github.com/iliyamo/stage-ticketing/internal/logger"
	"github.com/iliyamo/stage-ticketing/internal/middleware"
	"github.com/iliyamo/stage-ticketing/internal/queue"
	"github.com/iliyamo/stage-ticketing/internal/repository"
	"github.com/iliyamo/stage-ticketing/internal/router"
	"github.com/iliyamo/stage-ticketing/internal/service"
	"github.com/iliyamo/stage-ticketing/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var (
		store repository.Store
		db    *sql.DB
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		zl.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			zl.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			zl.Fatal("db schema", zap.Error(err))
		}
		store = repository.NewMySQLStore(db)
	}

	// Redis is optional: without it checkout is not rate limited and
	// availability is not cached.
	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		zl.Warn("redis unavailable, running without rate limiting and cache", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	// Events
	var events service.EventPublisher = service.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		events = queue.NewPublisher(cfg.RabbitMQURL, zl)
		consumer := queue.NewNotificationConsumer(cfg.RabbitMQURL, cfg.LogDir, zl)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	} else {
		zl.Info("RABBITMQ_URL not set, order events are not published")
	}

	// Services
	orderCfg := config.LoadOrderConfig()
	policy, err := config.LoadDiscountPolicy()
	if err != nil {
		zl.Fatal("discount policy", zap.Error(err))
	}
	ledger := service.NewLedger(store, zl)
	registry := service.NewExchangeRegistry(store, zl)
	orders := service.NewOrderService(store, ledger, registry, service.OrderConfig{
		HoldDuration: orderCfg.HoldDuration,
		Policy:       policy,
	}, events, zl)
	sessions := service.NewSessionService(store, ledger, zl)
	checkin := service.NewCheckInService(store, zl)

	expiry := worker.NewExpiryWorker(orders, worker.ExpiryConfig{
		ScanInterval: orderCfg.ExpiryScanInterval,
		BatchSize:    orderCfg.ExpiryBatchSize,
	}, zl)
	if err := expiry.Start(ctx); err != nil {
		zl.Fatal("expiry worker", zap.Error(err))
	}

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(zl))

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, zl)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl)

	var health func(context.Context) error
	if db != nil {
		health = db.PingContext
	}
	router.RegisterRoutes(e, health)
	router.RegisterPublic(e, handler.NewPublicHandler(sessions, orders, registry, cache, zl), limiter, cache)
	router.RegisterPayments(e, handler.NewPaymentHandler(orders, cache, zl), cfg.JWTSecret)
	router.RegisterCheckIn(e, handler.NewCheckInHandler(checkin, zl), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(sessions, orders, registry, cache, zl), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zl.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
	expiry.Stop()
	cancel()
}
