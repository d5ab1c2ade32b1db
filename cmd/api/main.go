package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-desk/internal/api/http"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/notify"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/scheduler"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics(strings.ReplaceAll(cfg.App.Name, "-", "_"))

	store, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	schedOpts := scheduler.Options{
		Logger:    logger.Named("scheduler"),
		Metrics:   metrics,
		BatchSize: cfg.Scheduler.BatchSize,
	}
	if store.Shared() {
		schedOpts.Lease = scheduler.NewRedisLease(redis.Client, cfg.Notification.KeyPrefix+":scheduler:lease", cfg.Scheduler.LeaseTTL())
	} else {
		logger.Info("single-node store; poller lease disabled", zap.String("backend", store.Backend))
	}
	sched := scheduler.New(store.Tasks, schedOpts)

	dispatcher := events.NewInMemoryDispatcher()
	service.NewAuditService(dispatcher, logger.Named("audit"), metrics).RegisterHandlers()

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: store.Tickets,
		EventRepo:  store.Events,
		Scheduler:  sched,
		Gateway:    notify.NewRedisGateway(redis.Client, cfg.Notification.Stream, cfg.Notification.KeyPrefix),
		Dispatcher: dispatcher,
		Logger:     logger.Named("tickets"),
		Config:     cfg.Tickets,
	})
	if err := tickets.RegisterHandlers(sched); err != nil {
		logger.Fatal("failed to register timer handlers", zap.Error(err))
	}

	var poller *worker.Poller
	if cfg.Scheduler.Enabled {
		poller, err = worker.StartPoller(ctx, sched, cfg.Scheduler.PollInterval(), logger.Named("poller"))
		if err != nil {
			logger.Fatal("failed to start scheduler poller", zap.Error(err))
		}
	} else {
		logger.Warn("scheduler poller disabled; timers will not fire on this node")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			store.Backend: store,
			"redis":       redis,
		}),
		Tickets:        handlers.NewTicketsHandler(tickets),
		StaffTickets:   handlers.NewStaffTicketsHandler(tickets),
		Channels:       handlers.NewChannelsHandler(tickets),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if poller != nil {
		if err := poller.Stop(); err != nil {
			logger.Warn("stop scheduler poller", zap.Error(err))
		}
	}
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
