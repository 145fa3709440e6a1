package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"go.uber.org/zap"
)

// DefaultScale 是渲染时的固定缩放倍数（72 DPI 基准）。
const DefaultScale = 1.5

// ErrEmptyDocument 表示文档没有任何页面。
var ErrEmptyDocument = errors.New("render: document has no pages")

// Document 是一个已加载、单遍渲染的文档，不支持并发渲染多页。
type Document interface {
	PageCount() int
	// RenderPage 按给定缩放渲染第 page 页（从 1 开始）。
	RenderPage(ctx context.Context, page int, scale float64) (image.Image, error)
	Close() error
}

// Loader 从原始字节加载文档。
type Loader interface {
	Load(ctx context.Context, src []byte) (Document, error)
}

// Encoder 将渲染结果编码为压缩位图。
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	ContentType() string
}

// PageError 表示某一页渲染或编码失败，整次栅格化随之中止。
type PageError struct {
	Page  int
	Total int
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("render page %d of %d: %v", e.Page, e.Total, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Rasterizer 把文档逐页转换为位图。
type Rasterizer struct {
	loader  Loader
	encoder Encoder
	scale   float64
	log     *zap.Logger
}

func NewRasterizer(loader Loader, encoder Encoder, scale float64, log *zap.Logger) *Rasterizer {
	if scale <= 0 {
		scale = DefaultScale
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Rasterizer{loader: loader, encoder: encoder, scale: scale, log: log.Named("rasterizer")}
}

// ContentType 返回输出位图的 MIME 类型。
func (r *Rasterizer) ContentType() string {
	return r.encoder.ContentType()
}

// Rasterize 严格按页序渲染全部页面，任意一页失败即返回错误，不返回部分结果。
func (r *Rasterizer) Rasterize(ctx context.Context, src []byte, onPage func(page, total int)) ([][]byte, error) {
	if r == nil || r.loader == nil || r.encoder == nil {
		return nil, errors.New("rasterizer not initialized")
	}
	if len(src) == 0 {
		return nil, ErrEmptyDocument
	}

	doc, err := r.loader.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	defer doc.Close()

	total := doc.PageCount()
	if total <= 0 {
		return nil, ErrEmptyDocument
	}

	out := make([][]byte, 0, total)
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.log.Debug("processing page", zap.Int("page", page), zap.Int("total", total))
		if onPage != nil {
			onPage(page, total)
		}

		img, err := doc.RenderPage(ctx, page, r.scale)
		if err != nil {
			return nil, &PageError{Page: page, Total: total, Err: err}
		}

		var buf bytes.Buffer
		if err := r.encoder.Encode(&buf, img); err != nil {
			return nil, &PageError{Page: page, Total: total, Err: fmt.Errorf("encode: %w", err)}
		}
		out = append(out, buf.Bytes())
	}

	return out, nil
}
