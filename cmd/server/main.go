package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slidedrop/internal/api"
	"slidedrop/internal/cache"
	"slidedrop/internal/config"
	"slidedrop/internal/convert"
	"slidedrop/internal/database"
	"slidedrop/internal/events"
	"slidedrop/internal/logging"
	"slidedrop/internal/migrations"
	"slidedrop/internal/render"
	"slidedrop/internal/repository/sqlstore"
	"slidedrop/internal/retry"
	"slidedrop/internal/service"
	"slidedrop/internal/storage/driver"
	"slidedrop/internal/upload"

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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("config loaded",
		zap.String("env", cfg.Env),
		zap.String("db", cfg.DBDriver),
		zap.String("storage", cfg.StorageDriver),
		zap.String("auth", cfg.AuthMode))

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	// SQLite 是单文件数据库，启动时直接建表
	if cfg.DBDriver == "sqlite" {
		if err := migrations.Apply(ctx, db, cfg.DBDriver); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	store, closeStore, err := driver.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer closeStore()

	loader := render.NewPopplerLoader(cfg.PdftoppmPath, "")
	if err := loader.AssertReady(); err != nil {
		return err
	}
	rasterizer := render.NewRasterizer(loader, render.WebPEncoder{Quality: float32(cfg.WebPQuality)}, cfg.RenderScale, logger)

	policy := retry.Policy{
		MaxRetries:    cfg.RetryMax,
		InitialDelay:  cfg.RetryInitialDelay,
		BackoffFactor: cfg.RetryBackoffFactor,
	}

	dialect := sqlstore.Dialect(cfg.DBDriver)
	decks := sqlstore.NewDeckRepository(db, dialect)
	accounts := sqlstore.NewAccountRepository(db)

	uploader := upload.NewUploader(store, logger)

	client := convert.NewClient(cfg.ConvertAPIURL, cfg.ConvertAPISecret, &http.Client{Timeout: cfg.ConvertTimeout})
	if !client.Configured() {
		logger.Warn("CONVERT_API_SECRET not set, interactive office decks will fail to convert")
	}
	converter := convert.NewAdapter(decks, store, client, uploader, policy, logger)

	var tierCache cache.Store = cache.NewMemory()
	deps := service.Deps{
		Decks:      decks,
		Store:      store,
		Rasterizer: rasterizer,
		Uploader:   uploader,
		Converter:  converter,
	}
	if rdb != nil {
		tierCache = cache.NewRedis(rdb, "slidedrop:")
		deps.Progress = events.NewRedisPublisher(rdb, cfg.ProgressChannelPrefix)
	}
	deps.Tiers = service.NewCachedTiers(accounts, tierCache, cfg.TierCacheTTL, policy, logger)

	svc := service.NewDeckService(deps, service.Options{
		UploadConcurrency: cfg.UploadConcurrency,
		ConvertWait:       cfg.ConvertWait,
		ConvertTimeout:    cfg.ConvertTimeout,
		ReconcileGrace:    cfg.ReconcileGrace,
		Retry:             policy,
	}, logger)

	handler := api.NewDeckHandler(svc, cfg.MaxUploadBytes, logger)
	router := api.NewRouter(cfg, handler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: cfg.ConvertWait + 5*time.Minute,
		IdleTimeout:  120 * time.Second,
		Handler:      router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}
