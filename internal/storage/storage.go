package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrNotFound 表示对象不存在。
var ErrNotFound = errors.New("storage: object not found")

// Writer 定义对象存储写接口，支持流式写入。
type Writer interface {
	Write(ctx context.Context, key string, r io.Reader, contentType string) (Location, error)
}

// Reader 定义对象存储读接口，支持流式读取。
type Reader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
}

// Deleter 删除单个对象，对象不存在时不报错。
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Lister 按前缀列出对象。
type Lister interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Storage 组合了读写、删除与列举能力的完整存储接口。
type Storage interface {
	Writer
	Reader
	Deleter
	Lister
	// KeyForURL 将公开 URL 还原为对象 key，不属于本存储的 URL 返回 false。
	KeyForURL(rawURL string) (string, bool)
}

// Location 描述已经写入对象的可访问信息。
type Location struct {
	Path string
	URL  string
}

// ObjectInfo 是列举结果中的单个对象。
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// PublicURLs 根据配置的公开前缀推导对象 URL。
type PublicURLs struct {
	Base string
}

// URL 返回 key 对应的公开地址，Base 为空时返回空串。
func (p PublicURLs) URL(key string) string {
	if p.Base == "" {
		return ""
	}
	u, err := url.JoinPath(p.Base, CleanKey(key))
	if err != nil {
		return ""
	}
	return u
}

// Key 是 URL 的逆运算。
func (p PublicURLs) Key(rawURL string) (string, bool) {
	if p.Base == "" || rawURL == "" {
		return "", false
	}
	base := strings.TrimRight(p.Base, "/") + "/"
	if !strings.HasPrefix(rawURL, base) {
		return "", false
	}
	rest := strings.TrimPrefix(rawURL, base)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// CleanKey 统一 key 格式：斜杠分隔、无前导斜杠。
func CleanKey(key string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.TrimPrefix(cleaned, "/")
}
