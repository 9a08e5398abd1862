package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/eventdesk/backoffice/internal/app"
	jobmetrics "github.com/eventdesk/backoffice/internal/jobs"
	"github.com/eventdesk/backoffice/internal/notifications"
	"github.com/eventdesk/backoffice/internal/platform/cache"
	"github.com/eventdesk/backoffice/internal/platform/db"
	"github.com/eventdesk/backoffice/internal/quotes"
	"github.com/eventdesk/backoffice/internal/shared"
	"github.com/eventdesk/backoffice/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	taxRate, err := cfg.TaxRate()
	if err != nil {
		logger.Error("tax rate", slog.Any("error", err))
		os.Exit(1)
	}
	formatter, err := notifications.NewFormatter(cfg.QuoteLocale, cfg.QuoteCurrency, notifications.DefaultDateLayout)
	if err != nil {
		logger.Error("init formatter", slog.Any("error", err))
		os.Exit(1)
	}

	// The worker owns the SMTP relay; the API only enqueues mail:send tasks.
	smtp := notifications.NewSMTPMailer(notifications.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})

	quoteRepo := quotes.NewRepository(pool)
	inApp := notifications.NewInAppStore(redisClient, cfg.NotifyInAppRetention, cfg.NotifyInAppMaxEntries)
	dispatcher := notifications.NewDispatcher(nil, quoteRepo, formatter, logger,
		notifications.NewEmailSender(smtp),
		notifications.WhatsAppSender{},
		notifications.NewInAppSender(inApp),
	).WithLogWriter(notifications.NewLogRepository(pool))
	notifier := notifications.NewNotifier(dispatcher, quoteRepo, logger)

	// Expiry transitions raised by the sweep are dispatched in-process.
	async := notifications.NewAsyncNotifier(notifier, cfg.NotifyDispatchTimeout)
	defer async.Wait()

	sequence := quotes.NewSequenceAllocator(cfg.QuoteNumberMaxAttempts,
		quotes.NewRedisLocker(redisClient, cfg.QuoteNumberLockTTL), logger)
	quoteService := quotes.NewService(quoteRepo, quotes.Config{
		TaxRate:  taxRate,
		Validity: cfg.QuoteValidity,
	}, sequence, async, shared.NewAuditLogger(pool), logger)

	sweepJob := jobs.NewExpireSweepJob(quoteService, logger, jobmetrics.NewMetrics(nil))
	sweepTask, err := jobs.NewExpireSweepTask(0)
	if err != nil {
		logger.Error("build expiry sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: notifications.TaskDispatch, Handler: notifications.HandleDispatchTask(notifier)},
			{Type: notifications.TaskSendEmail, Handler: notifications.HandleSendEmailTask(smtp)},
			{Type: jobs.TaskQuotesExpireSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirySweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
