package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slidedrop/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"
)

// Connect 按 DB_DRIVER 建立数据库连接并执行基础健康检查。
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.SQLiteDSN())
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// SQLite 只允许单写者
		db.SetMaxOpenConns(1)
	default:
		db, err = sql.Open("pgx", cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres connection: %w", err)
		}
		db.SetMaxOpenConns(15)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}

	return db, nil
}

// ConnectRedis 在配置了 REDIS_ADDR 时返回已连通的客户端，未配置时返回 nil。
func ConnectRedis(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	if cfg == nil || cfg.RedisAddr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
