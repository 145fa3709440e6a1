package render

import (
	"image"
	"io"

	"github.com/chai2010/webp"
)

// DefaultQuality 是有损 WebP 的固定质量参数。
const DefaultQuality = 80

// WebPEncoder 以固定质量输出有损 WebP。
type WebPEncoder struct {
	Quality float32
}

func (e WebPEncoder) Encode(w io.Writer, img image.Image) error {
	q := e.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	return webp.Encode(w, img, &webp.Options{Quality: q})
}

func (WebPEncoder) ContentType() string { return "image/webp" }
