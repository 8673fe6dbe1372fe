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

	"github.com/lumenhq/lumen/internal/activity"
	"github.com/lumenhq/lumen/internal/app"
	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/billing/quotes"
	"github.com/lumenhq/lumen/internal/billing/subscriptions"
	"github.com/lumenhq/lumen/internal/customers"
	"github.com/lumenhq/lumen/internal/observability"
	"github.com/lumenhq/lumen/internal/platform/cache"
	"github.com/lumenhq/lumen/internal/platform/db"
	"github.com/lumenhq/lumen/internal/sequence"
	"github.com/lumenhq/lumen/internal/shared"
	"github.com/lumenhq/lumen/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionTTL)
	allocator := sequence.NewAllocator(pool)
	metrics := observability.NewMetrics()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	pricingRepo := pricing.NewRepository(pool)
	resolver := pricing.NewResolver(pricingRepo, redisClient, logger)

	customerRepo := customers.NewRepository(pool)
	customerHandler := customers.NewHandler(logger, customerRepo)

	activityStore := activity.NewStore(pool)
	activityHandler := activity.NewHandler(logger, activityStore)

	subscriptionRepo := subscriptions.NewRepository(pool)
	subscriptionService := subscriptions.NewService(subscriptionRepo, resolver, pricingRepo)
	subscriptionHandler := subscriptions.NewHandler(logger, subscriptionService)

	quoteRepo := quotes.NewRepository(pool)
	quoteService := quotes.NewService(quoteRepo, allocator, jobsClient, logger)
	quoteHandler := quotes.NewHandler(logger, quoteService)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, resolver, pricingRepo, allocator)
	invoiceHandler := invoices.NewHandler(logger, invoiceService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		Pool:                pool,
		QuoteHandler:        quoteHandler,
		InvoiceHandler:      invoiceHandler,
		SubscriptionHandler: subscriptionHandler,
		CustomerHandler:     customerHandler,
		ActivityHandler:     activityHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
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
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
