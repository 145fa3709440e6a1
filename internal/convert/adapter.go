package convert

import (
	"context"
	"errors"
	"io"

	"slidedrop/internal/repository"
	"slidedrop/internal/retry"
	"slidedrop/internal/storage"
	"slidedrop/internal/upload"

	"go.uber.org/zap"
)

const pageContentType = "image/jpeg"

// Converter 抽象远程转换服务，便于测试替换。
type Converter interface {
	Configured() bool
	Convert(ctx context.Context, sourceExt, fileName string, data []byte) ([]ResultFile, error)
	Fetch(ctx context.Context, f ResultFile) ([]byte, error)
}

// PageUploader 是 upload.Uploader 的单对象上传能力。
type PageUploader interface {
	UploadOne(ctx context.Context, key string, data []byte, contentType string) (storage.Location, error)
}

// Result 是一次成功转换后写入记录的页面集合。
type Result struct {
	PageCount int                    `json:"pageCount"`
	Pages     []repository.SlidePage `json:"pages"`
}

// Adapter 把一个已上传源文件的办公文档 deck 转换成页面图片并完成记录。
type Adapter struct {
	decks    repository.DeckRepository
	store    storage.Reader
	client   Converter
	uploader PageUploader
	policy   retry.Policy
	log      *zap.Logger
}

func NewAdapter(decks repository.DeckRepository, store storage.Reader, client Converter, uploader PageUploader, policy retry.Policy, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		decks:    decks,
		store:    store,
		client:   client,
		uploader: uploader,
		policy:   policy,
		log:      log.Named("convert"),
	}
}

// ConvertRemote 执行转换：读取记录与源文件，调用转换服务，逐页上传，最后一次性写回 pages 与状态。
// 任何一步失败都返回 *Error，记录保持原状。
func (a *Adapter) ConvertRemote(ctx context.Context, deckID string) (*Result, error) {
	res, err := a.convert(ctx, deckID)
	if err != nil {
		var ce *Error
		code := "unknown"
		if errors.As(err, &ce) {
			code = string(ce.Code)
		}
		conversionsTotal.WithLabelValues(code).Inc()
		a.log.Error("remote conversion failed", zap.String("deckId", deckID), zap.Error(err))
		return nil, err
	}
	conversionsTotal.WithLabelValues("success").Inc()
	a.log.Info("remote conversion finished", zap.String("deckId", deckID), zap.Int("pages", res.PageCount))
	return res, nil
}

func (a *Adapter) convert(ctx context.Context, deckID string) (*Result, error) {
	if a.client == nil || !a.client.Configured() {
		return nil, newError(CodeConfig, nil, "conversion service is not configured")
	}
	if a.decks == nil || a.store == nil || a.uploader == nil {
		return nil, newError(CodeConfig, nil, "conversion adapter not initialized")
	}
	if deckID == "" {
		return nil, newError(CodeNotFound, nil, "deck id is required")
	}

	deck, err := retry.Do(ctx, a.policy, func(ctx context.Context) (*repository.DeckRecord, error) {
		return a.decks.GetByID(ctx, deckID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(CodeNotFound, err, "deck %s not found", deckID)
		}
		return nil, newError(CodeRecord, err, "load deck %s", deckID)
	}
	if deck.FilePath == "" {
		return nil, newError(CodeNotFound, nil, "deck %s has no source file", deckID)
	}

	src, err := retry.Do(ctx, a.policy, func(ctx context.Context) ([]byte, error) {
		rc, err := a.store.Read(ctx, deck.FilePath)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(CodeNotFound, err, "source file %s not found", deck.FilePath)
		}
		return nil, newError(CodeDownload, err, "download source file")
	}

	ext := string(deck.FileType)
	a.log.Info("remote conversion started",
		zap.String("deckId", deck.ID),
		zap.String("format", ext),
		zap.Int("bytes", len(src)))

	files, err := a.client.Convert(ctx, ext, deck.Slug+"."+ext, src)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, newError(CodeConversion, err, "%s", apiErr.Message)
		}
		return nil, newError(CodeConversion, err, "conversion request failed")
	}
	if len(files) == 0 {
		return nil, newError(CodeEmptyResult, nil, "conversion returned no pages")
	}

	// 逐页顺序上传，重复转换覆盖同名对象
	pages := make([]repository.SlidePage, 0, len(files))
	for i, f := range files {
		n := i + 1
		data, err := a.client.Fetch(ctx, f)
		if err != nil {
			return nil, newError(CodeDownload, err, "fetch converted page %d", n)
		}
		loc, err := a.uploader.UploadOne(ctx, upload.RemotePageKey(deck.OwnerID, deck.Slug, n), data, pageContentType)
		if err != nil {
			return nil, newError(CodeUpload, err, "upload converted page %d", n)
		}
		pages = append(pages, repository.SlidePage{ImageURL: loc.URL, PageNumber: n})
	}

	status := repository.DeckStatusProcessed
	err = retry.Run(ctx, a.policy, func(ctx context.Context) error {
		return a.decks.Update(ctx, deck.ID, repository.DeckUpdate{Pages: &pages, Status: &status})
	})
	if err != nil {
		return nil, newError(CodeRecord, err, "update deck %s", deck.ID)
	}

	return &Result{PageCount: len(pages), Pages: pages}, nil
}
