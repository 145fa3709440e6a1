// reconcile 扫描对象存储，删除所有 owner 下无记录引用的残留对象。适合由 cron 定期执行。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"slidedrop/internal/config"
	"slidedrop/internal/database"
	"slidedrop/internal/logging"
	"slidedrop/internal/repository/sqlstore"
	"slidedrop/internal/retry"
	"slidedrop/internal/service"
	"slidedrop/internal/storage/driver"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("reconcile failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	store, closeStore, err := driver.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer closeStore()

	// 清理只需要记录与存储，渲染与转换依赖留空
	svc := service.NewDeckService(service.Deps{
		Decks: sqlstore.NewDeckRepository(db, sqlstore.Dialect(cfg.DBDriver)),
		Store: store,
	}, service.Options{
		ReconcileGrace: cfg.ReconcileGrace,
		Retry: retry.Policy{
			MaxRetries:    cfg.RetryMax,
			InitialDelay:  cfg.RetryInitialDelay,
			BackoffFactor: cfg.RetryBackoffFactor,
		},
	}, logger)

	report, err := svc.ReconcileAll(ctx)
	if err != nil {
		return err
	}

	logger.Info("reconcile finished",
		zap.Int("owners", report.Owners),
		zap.Int("scanned", report.Scanned),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed))
	return nil
}
