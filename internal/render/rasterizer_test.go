package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"testing"
)

type fakeDocument struct {
	pages    int
	failPage int
	rendered []int
	scales   []float64
	closed   bool
	active   int
	overlap  bool
}

func (d *fakeDocument) PageCount() int { return d.pages }

func (d *fakeDocument) RenderPage(ctx context.Context, page int, scale float64) (image.Image, error) {
	d.active++
	defer func() { d.active-- }()
	if d.active > 1 {
		d.overlap = true
	}
	d.rendered = append(d.rendered, page)
	d.scales = append(d.scales, scale)
	if page == d.failPage {
		return nil, errors.New("corrupt content stream")
	}
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(0, 0, color.Gray{Y: uint8(page)})
	return img, nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

type fakeLoader struct {
	doc *fakeDocument
	err error
}

func (l *fakeLoader) Load(ctx context.Context, src []byte) (Document, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.doc, nil
}

// pageEncoder 把页面的首个像素值写出来，便于断言页序。
type pageEncoder struct{}

func (pageEncoder) Encode(w io.Writer, img image.Image) error {
	g := img.(*image.Gray)
	_, err := fmt.Fprintf(w, "page-%d", g.GrayAt(0, 0).Y)
	return err
}

func (pageEncoder) ContentType() string { return "image/test" }

func TestRasterize_SequentialPages(t *testing.T) {
	doc := &fakeDocument{pages: 3}
	r := NewRasterizer(&fakeLoader{doc: doc}, pageEncoder{}, 0, nil)

	var progress []string
	out, err := r.Rasterize(context.Background(), []byte("%PDF-1.7"), func(page, total int) {
		progress = append(progress, fmt.Sprintf("%d/%d", page, total))
	})
	if err != nil {
		t.Fatalf("Rasterize returned error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(out))
	}
	for i, b := range out {
		if want := fmt.Sprintf("page-%d", i+1); string(b) != want {
			t.Fatalf("page %d: expected %s, got %s", i+1, want, b)
		}
	}
	if doc.overlap {
		t.Fatal("pages must be rendered one at a time")
	}
	for _, s := range doc.scales {
		if s != DefaultScale {
			t.Fatalf("expected default scale %v, got %v", DefaultScale, s)
		}
	}
	if fmt.Sprint(progress) != "[1/3 2/3 3/3]" {
		t.Fatalf("unexpected progress %v", progress)
	}
	if !doc.closed {
		t.Fatal("document should be closed")
	}
}

func TestRasterize_PageFailureAborts(t *testing.T) {
	doc := &fakeDocument{pages: 4, failPage: 2}
	r := NewRasterizer(&fakeLoader{doc: doc}, pageEncoder{}, 2, nil)

	out, err := r.Rasterize(context.Background(), []byte("%PDF"), nil)
	if out != nil {
		t.Fatalf("expected no partial output, got %d pages", len(out))
	}
	var pe *PageError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PageError, got %v", err)
	}
	if pe.Page != 2 || pe.Total != 4 {
		t.Fatalf("unexpected page error %+v", pe)
	}
	if len(doc.rendered) != 2 {
		t.Fatalf("rendering should stop at the failing page, rendered %v", doc.rendered)
	}
	if !doc.closed {
		t.Fatal("document should be closed on failure")
	}
}

func TestRasterize_EmptyInput(t *testing.T) {
	r := NewRasterizer(&fakeLoader{doc: &fakeDocument{}}, pageEncoder{}, 0, nil)
	if _, err := r.Rasterize(context.Background(), nil, nil); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if _, err := r.Rasterize(context.Background(), []byte("%PDF"), nil); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument for zero pages, got %v", err)
	}
}

func TestRasterize_LoadError(t *testing.T) {
	r := NewRasterizer(&fakeLoader{err: errors.New("not a pdf")}, pageEncoder{}, 0, nil)
	if _, err := r.Rasterize(context.Background(), []byte("garbage"), nil); err == nil {
		t.Fatal("expected load error")
	}
}

func TestRasterize_CancelledContext(t *testing.T) {
	doc := &fakeDocument{pages: 5}
	r := NewRasterizer(&fakeLoader{doc: doc}, pageEncoder{}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.Rasterize(ctx, []byte("%PDF"), func(page, total int) {
		if page == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(doc.rendered) != 2 {
		t.Fatalf("expected rendering to stop after page 2, got %v", doc.rendered)
	}
}
