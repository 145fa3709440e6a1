package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PopplerLoader 使用 pdfcpu 校验并统计页数，使用 pdftoppm 渲染单页。
//
// 运行环境需要 poppler-utils 提供的 pdftoppm。
type PopplerLoader struct {
	PdftoppmPath string
	WorkDir      string
}

func NewPopplerLoader(pdftoppmPath, workDir string) *PopplerLoader {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	return &PopplerLoader{PdftoppmPath: pdftoppmPath, WorkDir: workDir}
}

// AssertReady 检查 pdftoppm 是否可用。
func (l *PopplerLoader) AssertReady() error {
	if _, err := exec.LookPath(l.PdftoppmPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", l.PdftoppmPath, err)
	}
	return nil
}

func (l *PopplerLoader) Load(ctx context.Context, src []byte) (Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.PageCount(bytes.NewReader(src), conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	dir, err := os.MkdirTemp(l.WorkDir, "rasterize-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(path, src, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	return &popplerDocument{bin: l.PdftoppmPath, dir: dir, path: path, pages: pages}, nil
}

type popplerDocument struct {
	bin   string
	dir   string
	path  string
	pages int
}

func (d *popplerDocument) PageCount() int { return d.pages }

func (d *popplerDocument) RenderPage(ctx context.Context, page int, scale float64) (image.Image, error) {
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("page %d out of range 1..%d", page, d.pages)
	}

	dpi := int(72*scale + 0.5)
	prefix := filepath.Join(d.dir, fmt.Sprintf("page_%04d", page))
	args := []string{
		"-r", strconv.Itoa(dpi),
		"-png",
		"-singlefile",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		d.path, prefix,
	}

	cmd := exec.CommandContext(ctx, d.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	imgPath := prefix + ".png"
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, fmt.Errorf("no image produced by pdftoppm: %w; out=%s", err, string(out))
	}
	defer os.Remove(imgPath)
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

func (d *popplerDocument) Close() error {
	return os.RemoveAll(d.dir)
}
