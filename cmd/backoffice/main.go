package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/eventdesk/backoffice/cmd/backoffice/cli"
	"github.com/eventdesk/backoffice/internal/app"
	"github.com/eventdesk/backoffice/internal/audit"
	audithttp "github.com/eventdesk/backoffice/internal/audit/http"
	"github.com/eventdesk/backoffice/internal/notifications"
	"github.com/eventdesk/backoffice/internal/observability"
	"github.com/eventdesk/backoffice/internal/platform/cache"
	"github.com/eventdesk/backoffice/internal/platform/db"
	"github.com/eventdesk/backoffice/internal/quotes"
	"github.com/eventdesk/backoffice/internal/rbac"
	"github.com/eventdesk/backoffice/internal/shared"
	"github.com/eventdesk/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	notificationQueue := jobClient.ForQueue(jobs.QueueNotifications)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	taxRate, err := cfg.TaxRate()
	if err != nil {
		return err
	}
	formatter, err := notifications.NewFormatter(cfg.QuoteLocale, cfg.QuoteCurrency, notifications.DefaultDateLayout)
	if err != nil {
		return fmt.Errorf("init formatter: %w", err)
	}

	quoteRepo := quotes.NewRepository(pool)
	inApp := notifications.NewInAppStore(redisClient, cfg.NotifyInAppRetention, cfg.NotifyInAppMaxEntries)
	logRepo := notifications.NewLogRepository(pool)

	dispatcher := notifications.NewDispatcher(nil, quoteRepo, formatter, logger,
		notifications.NewEmailSender(notifications.NewQueueMailer(notificationQueue)),
		notifications.WhatsAppSender{},
		notifications.NewInAppSender(inApp),
	).WithLogWriter(logRepo).WithMetrics(metrics)
	notifier := notifications.NewNotifier(dispatcher, quoteRepo, logger)

	var publisher quotes.EventPublisher
	if cfg.NotifyAsyncQueue {
		publisher = notifications.NewQueueNotifier(notificationQueue, logger)
	} else {
		async := notifications.NewAsyncNotifier(notifier, cfg.NotifyDispatchTimeout)
		defer async.Wait()
		publisher = async
	}

	sequence := quotes.NewSequenceAllocator(cfg.QuoteNumberMaxAttempts,
		quotes.NewRedisLocker(redisClient, cfg.QuoteNumberLockTTL), logger)
	quoteService := quotes.NewService(quoteRepo, quotes.Config{
		TaxRate:  taxRate,
		Validity: cfg.QuoteValidity,
	}, sequence, publisher, shared.NewAuditLogger(pool), logger).
		WithIdempotency(shared.NewIdempotencyStore(pool)).
		WithMetrics(metrics)

	rbacMiddleware := rbac.Middleware{Logger: logger}
	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		QuotesHandler:       quotes.NewHandler(logger, quoteService, rbacMiddleware, cfg.PublicRateLimit),
		NotificationHandler: notifications.NewHandler(logger, inApp, logRepo, rbacMiddleware),
		AuditHandler:        audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	return server.Shutdown(shutdownCtx)
}

func runJobsCommand(cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: backoffice jobs <trigger NAME|stats>")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: backoffice jobs trigger NAME")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			return err
		}
		return cli.WriteStats(os.Stdout, stats)
	default:
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
}
