package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"slidedrop/internal/retry"
	"slidedrop/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool   // 是否使用 HTTPS
	PathStyle bool   // 是否使用路径风格（MinIO 需要 true）
	PublicURL string // 对象公开访问前缀，例如 CDN 域名
}

// Storage 实现了 storage.Storage 接口，使用 S3 兼容存储。
type Storage struct {
	client *minio.Client
	bucket string
	urls   storage.PublicURLs
}

// New 创建新的 S3 存储实例。
func New(ctx context.Context, cfg Config) (*Storage, error) {
	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	// 检查 bucket 是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{
			Region: cfg.Region,
		}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = client.EndpointURL().String() + "/" + cfg.Bucket
	}

	return &Storage{
		client: client,
		bucket: cfg.Bucket,
		urls:   storage.PublicURLs{Base: publicURL},
	}, nil
}

// Write 将对象写入 S3 存储。
func (s *Storage) Write(ctx context.Context, key string, r io.Reader, contentType string) (storage.Location, error) {
	if s == nil || s.client == nil {
		return storage.Location{}, fmt.Errorf("s3 storage uninitialized")
	}

	cleanKey := storage.CleanKey(key)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// 上传文件（使用 -1 表示未知大小，让 SDK 自动处理）
	info, err := s.client.PutObject(ctx, s.bucket, cleanKey, r, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000",
	})
	if err != nil {
		return storage.Location{}, fmt.Errorf("put object: %w", classify(err))
	}

	return storage.Location{
		Path: info.Key,
		URL:  s.urls.URL(info.Key),
	}, nil
}

// Read 从 S3 存储读取文件。
func (s *Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("s3 storage uninitialized")
	}

	cleanKey := storage.CleanKey(key)

	obj, err := s.client.GetObject(ctx, s.bucket, cleanKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", classify(err))
	}

	// 验证对象是否存在
	_, err = obj.Stat()
	if err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat object: %w", classify(err))
	}

	return obj, nil
}

// Delete 从 S3 存储删除对象。
func (s *Storage) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 storage uninitialized")
	}

	cleanKey := storage.CleanKey(key)
	if err := s.client.RemoveObject(ctx, s.bucket, cleanKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", classify(err))
	}
	return nil
}

// List 递归列出前缀下的对象。
func (s *Storage) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("s3 storage uninitialized")
	}

	var out []storage.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", classify(obj.Err))
		}
		out = append(out, storage.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

func (s *Storage) KeyForURL(rawURL string) (string, bool) {
	return s.urls.Key(rawURL)
}

// classify 将无响应与 5xx 错误标记为瞬时错误，供 retry 判断。
func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 || resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return retry.MarkTransient(err)
	}
	return err
}
