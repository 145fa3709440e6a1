package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"slidedrop/internal/storage"
)

// Writer 将对象写入本地文件系统，用于开发环境与测试。
type Writer struct {
	BaseDir string
	urls    storage.PublicURLs
}

func NewWriter(baseDir, baseURL string) *Writer {
	return &Writer{BaseDir: baseDir, urls: storage.PublicURLs{Base: baseURL}}
}

func (w *Writer) path(key string) string {
	return filepath.Join(w.BaseDir, filepath.FromSlash(storage.CleanKey(key)))
}

// Write 先写临时文件再 rename，保证读者不会看到半截对象。contentType 在本地实现中忽略。
func (w *Writer) Write(ctx context.Context, key string, r io.Reader, contentType string) (storage.Location, error) {
	if w == nil {
		return storage.Location{}, fmt.Errorf("local writer uninitialized")
	}

	select {
	case <-ctx.Done():
		return storage.Location{}, ctx.Err()
	default:
	}

	cleanKey := storage.CleanKey(key)
	targetPath := w.path(cleanKey)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return storage.Location{}, fmt.Errorf("ensure dir: %w", err)
	}

	file, err := os.CreateTemp(filepath.Dir(targetPath), filepath.Base(targetPath)+".*.tmp")
	if err != nil {
		return storage.Location{}, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := file.Name()

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("write file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	return storage.Location{Path: cleanKey, URL: w.urls.URL(cleanKey)}, nil
}

// Read 打开并返回指定 key 对应的文件内容。
func (w *Writer) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if w == nil {
		return nil, fmt.Errorf("local writer uninitialized")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	file, err := os.Open(w.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}

	return file, nil
}

// Delete 删除文件，不存在视为成功。
func (w *Writer) Delete(ctx context.Context, key string) error {
	if w == nil {
		return fmt.Errorf("local writer uninitialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(w.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// List 递归列出前缀下的文件，跳过未完成的临时文件。
func (w *Writer) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if w == nil {
		return nil, fmt.Errorf("local writer uninitialized")
	}

	cleanPrefix := storage.CleanKey(prefix)
	if strings.HasSuffix(prefix, "/") && cleanPrefix != "" {
		cleanPrefix += "/"
	}
	root := w.path(filepath.Dir(cleanPrefix + "x"))

	var out []storage.ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(w.BaseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, cleanPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", prefix, err)
	}
	return out, nil
}

func (w *Writer) KeyForURL(rawURL string) (string, bool) {
	return w.urls.Key(rawURL)
}
