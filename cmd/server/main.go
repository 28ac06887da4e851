package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/config"
	"github.com/iliyamo/booking-record-engine/internal/database"
	"github.com/iliyamo/booking-record-engine/internal/handler"
	"github.com/iliyamo/booking-record-engine/internal/logger"
	"github.com/iliyamo/booking-record-engine/internal/middleware"
	"github.com/iliyamo/booking-record-engine/internal/notify"
	"github.com/iliyamo/booking-record-engine/internal/queue"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/router"
	"github.com/iliyamo/booking-record-engine/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.LogLevel, cfg.LogFormat, "booking-record-engine")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		log.Info("schema migrated")
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	hub := notify.NewHub(notify.DefaultBuffer, log)
	notifier, closeNotifier := buildNotifier(ctx, cfg, rdb, hub, log)
	defer closeNotifier()

	records := repository.NewReservationRepo(db)
	fields := repository.NewFieldDefinitionRepo(db)
	audits := repository.NewAuditRepo(db)
	policy := service.Policy{
		RestoreWindow:   cfg.RestoreWindow,
		BulkMaxTargets:  cfg.BulkMaxTargets,
		AllowHardDelete: cfg.AllowHardDelete,
	}
	reservations := service.NewReservationService(db, records, fields, audits, notifier, log, policy)
	bulk := service.NewBulkService(db, records, fields, audits, notifier, log, policy)
	definitions := service.NewFieldDefinitionService(fields, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log, cfg.IsDevelopment())
	e.Use(middleware.RequestID(), middleware.RequestLogger(log))

	h := router.Handlers{
		Bookings:  handler.NewBookingHandler(reservations),
		Bulk:      handler.NewBulkHandler(bulk, log),
		Stream:    handler.NewStreamHandler(hub, handler.DefaultHeartbeat),
		Fields:    handler.NewFieldDefinitionHandler(definitions),
		Audits:    handler.NewAuditHandler(audits),
		Readiness: handler.Readiness{DB: db, Redis: rdb},
	}
	router.RegisterRoutes(e, h)
	router.RegisterAPI(e, h, router.Options{
		JWTSecret:    cfg.JWTSecret,
		AuthRequired: cfg.AuthRequired,
		RateLimit:    config.LoadRateLimitConfig(),
		Redis:        rdb,
		Logger:       log,
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}

// buildNotifier chooses how committed mutations reach subscribers.  With
// RabbitMQ every instance publishes to the exchange and consumes back into
// its own hub, so SSE clients on any instance see every write.  Without
// it, Redis pub/sub plays the same role when a channel is configured, and
// a single instance falls back to notifying its hub directly.
func buildNotifier(ctx context.Context, cfg config.Config, rdb *redis.Client, hub *notify.Hub, log *zap.Logger) (notify.Notifier, func()) {
	var out notify.Multi
	closeFn := func() {}

	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		out = append(out, pub)
		closeFn = pub.Close
		go func() {
			err := queue.StartMutationConsumer(ctx, queue.ConsumerConfig{
				URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange, Queue: cfg.AMQPQueue,
			}, hub, log)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("mutation consumer stopped", zap.Error(err))
			}
		}()
	}
	if rdb != nil && cfg.RedisChannel != "" {
		out = append(out, notify.NewRedisPublisher(rdb, cfg.RedisChannel, log))
		if cfg.AMQPURL == "" {
			go notify.RelayRedis(ctx, rdb, cfg.RedisChannel, hub, log)
		}
	}
	if len(out) == 0 {
		return hub, closeFn
	}
	return out, closeFn
}
