package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"p2p/apps/p2p/internal/api"
	"p2p/apps/p2p/internal/config"
	"p2p/apps/p2p/internal/event_publisher"
	"p2p/apps/p2p/internal/history_materializer"
	"p2p/apps/p2p/internal/ledger"
	"p2p/apps/p2p/internal/model"
	"p2p/apps/p2p/internal/notification"
	"p2p/apps/p2p/internal/repository"
	"p2p/apps/p2p/internal/scheduler"
	"p2p/apps/p2p/internal/trade"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg := config.NewConfig()

	cancelPolicy, err := trade.ParseCancelPolicy(cfg.CancelPolicy)
	if err != nil {
		logger.Fatal("Invalid cancel policy", zap.Error(err))
	}

	logger.Info("Starting application with configuration",
		zap.String("kafka_broker", cfg.KafkaBroker),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.String("ledger_url", cfg.LedgerURL),
		zap.Duration("ledger_timeout", cfg.LedgerTimeout),
		zap.Duration("transaction_expire_time", cfg.TransactionExpireTime),
		zap.Bool("release_on_expiry", cfg.ReleaseOnExpiry),
		zap.String("cancel_policy", string(cancelPolicy)),
		zap.Int("api_port", cfg.APIPort),
	)

	db, err := sql.Open("postgres", cfg.DbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.InitMigration(db); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	tradeRepository := repository.NewTradeRepository(db, logger)
	outboxRepository := repository.NewOutboxRepository(db, logger)
	taskRepository := repository.NewTaskRepository(db, logger)
	historyRepository := repository.NewHistoryRepository(db, logger)

	ledgerClient := ledger.NewClient(cfg.LedgerURL, cfg.LedgerTimeout, logger)

	tradeService := trade.NewService(
		tradeRepository,
		ledgerClient,
		notification.NewPublisher(outboxRepository, cfg.NotificationKey, logger),
		scheduler.NewExpiryScheduler(taskRepository),
		trade.Settings{
			ExpireAfter:     cfg.TransactionExpireTime,
			ReleaseOnExpiry: cfg.ReleaseOnExpiry,
			CancelPolicy:    cancelPolicy,
		},
		logger,
	)

	runner := scheduler.NewRunner(taskRepository, cfg.SchedulerPollInterval, cfg.SchedulerMaxAttempts, logger)
	runner.Register(model.TaskKindExpire, func(ctx context.Context, tradeID string) error {
		_, err := tradeService.ExpireTrade(ctx, tradeID)
		if errors.Is(err, trade.ErrReconciliationRequired) {
			return backoff.Permanent(err)
		}
		return err
	})

	eventPublisher, err := event_publisher.NewEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, cfg.PublishInterval, logger, outboxRepository)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}
	defer eventPublisher.Close()

	materializer, err := history_materializer.NewHistoryMaterializer(cfg.KafkaBroker, cfg.KafkaTopic, cfg.NotificationKey, logger, historyRepository)
	if err != nil {
		logger.Fatal("Failed to create history materializer", zap.Error(err))
	}
	defer materializer.Close()

	apiServer := api.NewServer(
		cfg.APIPort,
		tradeService,
		historyRepository,
		api.NewAuthenticator(cfg.JWTSecret, ledgerClient, logger),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eventPublisher.StartPublishing(ctx) })
	g.Go(func() error { return materializer.Start(ctx) })
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Received shutdown signal, starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return apiServer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application stopped with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Application shutdown complete")
}
