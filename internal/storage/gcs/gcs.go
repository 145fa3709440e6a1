package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"slidedrop/internal/retry"
	"slidedrop/internal/storage"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Storage 基于 Google Cloud Storage 的 storage.Storage 实现。
type Storage struct {
	client *gcstorage.Client
	bucket *gcstorage.BucketHandle
	urls   storage.PublicURLs
}

// New 使用默认凭据创建 GCS 存储实例，publicURL 为空时使用 storage.googleapis.com。
func New(ctx context.Context, bucket, publicURL string) (*Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket must be provided")
	}

	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	if publicURL == "" {
		publicURL = "https://storage.googleapis.com/" + bucket
	}

	return &Storage{
		client: client,
		bucket: client.Bucket(bucket),
		urls:   storage.PublicURLs{Base: publicURL},
	}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Storage) Write(ctx context.Context, key string, r io.Reader, contentType string) (storage.Location, error) {
	if s == nil || s.bucket == nil {
		return storage.Location{}, fmt.Errorf("gcs storage uninitialized")
	}

	cleanKey := storage.CleanKey(key)
	writer := s.bucket.Object(cleanKey).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "public, max-age=31536000"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return storage.Location{}, fmt.Errorf("io.Copy to GCS failed: %w", classify(err))
	}
	if err := writer.Close(); err != nil {
		return storage.Location{}, fmt.Errorf("failed to finalize GCS write: %w", classify(err))
	}

	return storage.Location{Path: cleanKey, URL: s.urls.URL(cleanKey)}, nil
}

func (s *Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.bucket == nil {
		return nil, fmt.Errorf("gcs storage uninitialized")
	}

	reader, err := s.bucket.Object(storage.CleanKey(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", key, classify(err))
	}
	return reader, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if s == nil || s.bucket == nil {
		return fmt.Errorf("gcs storage uninitialized")
	}

	err := s.bucket.Object(storage.CleanKey(key)).Delete(ctx)
	if err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("delete GCS object %s: %w", key, classify(err))
	}
	return nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if s == nil || s.bucket == nil {
		return nil, fmt.Errorf("gcs storage uninitialized")
	}

	var out []storage.ObjectInfo
	it := s.bucket.Objects(ctx, &gcstorage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list GCS objects: %w", classify(err))
		}
		out = append(out, storage.ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return out, nil
}

func (s *Storage) KeyForURL(rawURL string) (string, bool) {
	return s.urls.Key(rawURL)
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code >= http.StatusInternalServerError || gerr.Code == http.StatusTooManyRequests {
			return retry.MarkTransient(err)
		}
		return err
	}
	return err
}
