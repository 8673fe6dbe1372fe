package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/lumenhq/lumen/internal/app"
	"github.com/lumenhq/lumen/internal/billing/invoices"
	"github.com/lumenhq/lumen/internal/billing/pricing"
	"github.com/lumenhq/lumen/internal/billing/quotes"
	"github.com/lumenhq/lumen/internal/customers"
	"github.com/lumenhq/lumen/internal/observability"
	"github.com/lumenhq/lumen/internal/platform/cache"
	"github.com/lumenhq/lumen/internal/platform/db"
	"github.com/lumenhq/lumen/internal/sequence"
	"github.com/lumenhq/lumen/jobs"
	"github.com/lumenhq/lumen/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	allocator := sequence.NewAllocator(pool)
	metrics := observability.NewMetrics()

	pricingRepo := pricing.NewRepository(pool)
	resolver := pricing.NewResolver(pricingRepo, redisClient, logger)

	customerRepo := customers.NewRepository(pool)

	quoteRepo := quotes.NewRepository(pool)
	quoteService := quotes.NewService(quoteRepo, allocator, nil, logger)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, resolver, pricingRepo, allocator)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	renderJob := jobs.NewRenderDocumentJob(quoteService, invoiceService, customerRepo, pdfClient, cfg.DocumentDir, logger)
	sweepJob := jobs.NewBillingSweepJob(quoteService, invoiceService, metrics, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeRenderDocument, Handler: renderJob.Handle},
			{Type: jobs.TaskTypeBillingSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepCron, Task: jobs.NewBillingSweepTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
