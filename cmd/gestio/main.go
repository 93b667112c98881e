package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gestio-app/gestio/internal/app"
	"github.com/gestio-app/gestio/internal/billing"
	"github.com/gestio-app/gestio/internal/clients"
	"github.com/gestio-app/gestio/internal/observability"
	"github.com/gestio-app/gestio/internal/payments"
	"github.com/gestio-app/gestio/internal/platform/cache"
	"github.com/gestio-app/gestio/internal/platform/db"
	"github.com/gestio-app/gestio/internal/scheduling"
	"github.com/gestio-app/gestio/internal/shared"
	"github.com/gestio-app/gestio/internal/signature"
	"github.com/gestio-app/gestio/internal/subscriptions"
	"github.com/gestio-app/gestio/jobs"
	"github.com/gestio-app/gestio/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	clientRepo := clients.NewRepository(dbpool)
	clientService := clients.NewService(clientRepo)
	clientHandler := clients.NewHandler(logger, clientService)

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(billingRepo, billing.NewGuard(nil), logger).
		WithAudit(shared.NewAuditLogger(dbpool)).
		WithDispatcher(queue)
	billingHandler := billing.NewHandler(logger, billingService)

	signatureRepo := signature.NewRepository(dbpool)
	signatureService := signature.NewService(signatureRepo, billingService, cfg.SignatureTokenTTL)
	signatureHandler := signature.NewHandler(logger, signatureService)

	subscriptionRepo := subscriptions.NewRepository(dbpool)
	subscriptionService := subscriptions.NewService(subscriptionRepo, billingService, logger)
	subscriptionHandler := subscriptions.NewHandler(logger, subscriptionService)

	schedulingRepo := scheduling.NewRepository(dbpool)
	schedulingService := scheduling.NewService(schedulingRepo, nil, redisClient, logger).
		WithDispatcher(queue)
	schedulingHandler := scheduling.NewHandler(logger, schedulingService)

	paymentRepo := payments.NewRepository(dbpool)
	paymentService := payments.NewService(paymentRepo, billingService, payments.StubGateway{}, logger)
	paymentHandler := payments.NewHandler(logger, paymentService)

	archive, err := report.NewDirArchive(cfg.PDFArchiveDir)
	if err != nil {
		logger.Error("init pdf archive", slog.Any("error", err))
		os.Exit(1)
	}
	reportClient := report.NewClient(cfg.GotenbergURL)
	renderer := report.NewRenderer(reportClient, billingService, billingService, archive, logger)
	reportHandler := report.NewHandler(renderer, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		ClientsHandler:       clientHandler,
		BillingHandler:       billingHandler,
		SignatureHandler:     signatureHandler,
		SubscriptionsHandler: subscriptionHandler,
		SchedulingHandler:    schedulingHandler,
		PaymentsHandler:      paymentHandler,
		ReportHandler:        reportHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
