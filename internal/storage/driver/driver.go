// Package driver 根据配置选择对象存储实现。
package driver

import (
	"context"
	"fmt"

	"slidedrop/internal/config"
	"slidedrop/internal/storage"
	"slidedrop/internal/storage/gcs"
	"slidedrop/internal/storage/local"
	"slidedrop/internal/storage/s3"
)

// Open 按 STORAGE_DRIVER 构造对象存储，返回的 close 函数总是可调用。
func Open(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	noop := func() {}
	switch cfg.StorageDriver {
	case "s3":
		st, err := s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
			PublicURL: cfg.StoragePublicURL,
		})
		if err != nil {
			return nil, noop, err
		}
		return st, noop, nil
	case "gcs":
		st, err := gcs.New(ctx, cfg.GCSBucket, cfg.StoragePublicURL)
		if err != nil {
			return nil, noop, err
		}
		return st, func() { _ = st.Close() }, nil
	case "local", "":
		return local.NewWriter(cfg.StorageDir, cfg.StoragePublicURL), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
