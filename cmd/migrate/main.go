package main

import (
	"context"

	"slidedrop/internal/config"
	"slidedrop/internal/database"
	"slidedrop/internal/logging"
	"slidedrop/internal/migrations"

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

	db, err := database.Connect(context.Background(), cfg)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Apply(context.Background(), db, cfg.DBDriver); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	logger.Info("migrations applied", zap.String("dialect", cfg.DBDriver))
}
