package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"slidedrop/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency 是每个窗口内同时进行的上传数量。
	DefaultConcurrency = 3
	defaultAttempts    = 3
	defaultBackoff     = time.Second
)

// Options 控制一次批量上传。
type Options struct {
	Concurrency int
	ContentType string
	// OnProgress 在每个对象成功写入后触发，done 为已成功数量。
	OnProgress func(done, total int)
}

// BatchError 表示批量上传中某个对象在重试耗尽后失败。
// Uploaded 列出失败前已经写入存储的对象 key，它们没有任何记录引用。
type BatchError struct {
	Index    int
	Key      string
	Uploaded []string
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upload item %d (%s) failed: %v", e.Index+1, e.Key, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Uploader 以窗口方式并发上传对象，并对每个对象单独重试。
type Uploader struct {
	store    storage.Writer
	log      *zap.Logger
	attempts int
	backoff  time.Duration
}

// Option 调整 Uploader 的重试参数。
type Option func(*Uploader)

// WithRetry 设置单个对象的最大尝试次数与线性退避基数。
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(u *Uploader) {
		if attempts > 0 {
			u.attempts = attempts
		}
		if backoff >= 0 {
			u.backoff = backoff
		}
	}
}

func NewUploader(store storage.Writer, log *zap.Logger, opts ...Option) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	u := &Uploader{
		store:    store,
		log:      log.Named("uploader"),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UploadAll 上传 blobs 并返回与输入顺序一一对应的公开 URL。
// 每个窗口内的上传全部结束后才进入下一个窗口。
func (u *Uploader) UploadAll(ctx context.Context, blobs [][]byte, keyFor func(i int) string, opts Options) ([]string, error) {
	if u == nil || u.store == nil {
		return nil, errors.New("uploader not initialized")
	}
	if keyFor == nil {
		return nil, errors.New("keyFor is required")
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	total := len(blobs)
	urls := make([]string, total)

	var (
		mu       sync.Mutex
		done     int
		uploaded []string
	)

	for start := 0; start < total; start += limit {
		if err := ctx.Err(); err != nil {
			return nil, &BatchError{Index: start, Key: keyFor(start), Uploaded: uploaded, Err: err}
		}

		end := min(start+limit, total)
		failures := make([]error, end-start)

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				key := keyFor(i)
				loc, err := u.UploadOne(ctx, key, blobs[i], opts.ContentType)
				if err != nil {
					failures[i-start] = err
					return err
				}

				mu.Lock()
				urls[i] = loc.URL
				uploaded = append(uploaded, loc.Path)
				done++
				if opts.OnProgress != nil {
					opts.OnProgress(done, total)
				}
				mu.Unlock()
				return nil
			})
		}
		// 等待整个窗口落定，失败项不取消同窗口的其他上传
		if err := g.Wait(); err != nil {
			idx := start
			for j, ferr := range failures {
				if ferr != nil {
					idx = start + j
					break
				}
			}
			u.log.Error("batch upload aborted",
				zap.Int("item", idx+1),
				zap.Int("total", total),
				zap.Int("orphaned", len(uploaded)),
				zap.Error(err))
			return nil, &BatchError{Index: idx, Key: keyFor(idx), Uploaded: uploaded, Err: err}
		}
	}

	return urls, nil
}

// UploadOne 写入单个对象，失败时以 backoff*attempt 的线性间隔重试。
func (u *Uploader) UploadOne(ctx context.Context, key string, data []byte, contentType string) (storage.Location, error) {
	uploadsInFlight.Inc()
	defer uploadsInFlight.Dec()

	var lastErr error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		loc, err := u.store.Write(ctx, key, bytes.NewReader(data), contentType)
		if err == nil {
			pageUploadsTotal.WithLabelValues("success").Inc()
			return loc, nil
		}
		lastErr = err

		if attempt == u.attempts {
			break
		}

		wait := u.backoff * time.Duration(attempt)
		uploadRetriesTotal.Inc()
		u.log.Warn("upload failed, will retry",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", u.attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			pageUploadsTotal.WithLabelValues("cancelled").Inc()
			return storage.Location{}, ctx.Err()
		}
	}

	pageUploadsTotal.WithLabelValues("failure").Inc()
	return storage.Location{}, fmt.Errorf("upload %s failed after %d attempts: %w", key, u.attempts, lastErr)
}
