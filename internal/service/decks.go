package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"slidedrop/internal/convert"
	"slidedrop/internal/events"
	"slidedrop/internal/repository"
	"slidedrop/internal/retry"
	"slidedrop/internal/storage"
	"slidedrop/internal/upload"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Rasterizer 把 PDF 逐页渲染为位图。
type Rasterizer interface {
	Rasterize(ctx context.Context, src []byte, onPage func(page, total int)) ([][]byte, error)
	ContentType() string
}

// BatchUploader 是 upload.Uploader 的能力集合。
type BatchUploader interface {
	UploadAll(ctx context.Context, blobs [][]byte, keyFor func(i int) string, opts upload.Options) ([]string, error)
}

// RemoteConverter 是 convert.Adapter 的能力。
type RemoteConverter interface {
	ConvertRemote(ctx context.Context, deckID string) (*convert.Result, error)
}

// ProgressReporter 接收流水线进度，发布失败不影响主流程。
type ProgressReporter interface {
	Publish(ctx context.Context, ev events.Progress) error
}

// Deps 汇总 DeckService 的外部协作方。
type Deps struct {
	Decks      repository.DeckRepository
	Tiers      TierResolver
	Store      storage.Storage
	Rasterizer Rasterizer
	Uploader   BatchUploader
	Converter  RemoteConverter
	Progress   ProgressReporter
	// Clock 为空时使用 time.Now
	Clock func() time.Time
}

// Options 是发布流水线的可调参数。
type Options struct {
	UploadConcurrency int
	ConvertWait       time.Duration
	ConvertTimeout    time.Duration
	ReconcileGrace    time.Duration
	Retry             retry.Policy
}

// DeckService 编排 deck 的上传、渲染、发布与维护。
type DeckService struct {
	decks      repository.DeckRepository
	tiers      TierResolver
	store      storage.Storage
	rasterizer Rasterizer
	uploader   BatchUploader
	converter  RemoteConverter
	progress   ProgressReporter
	opts       Options
	now        func() time.Time
	newID      func() string
	log        *zap.Logger
}

func NewDeckService(deps Deps, opts Options, log *zap.Logger) *DeckService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = upload.DefaultConcurrency
	}
	if opts.ConvertWait <= 0 {
		opts.ConvertWait = 25 * time.Second
	}
	if opts.ConvertTimeout <= 0 {
		opts.ConvertTimeout = 5 * time.Minute
	}
	if opts.ReconcileGrace <= 0 {
		opts.ReconcileGrace = time.Hour
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &DeckService{
		decks:      deps.Decks,
		tiers:      deps.Tiers,
		store:      deps.Store,
		rasterizer: deps.Rasterizer,
		uploader:   deps.Uploader,
		converter:  deps.Converter,
		progress:   deps.Progress,
		opts:       opts,
		now:        clock,
		newID:      uuid.NewString,
		log:        log.Named("decks"),
	}
}

// PublishInput 描述一次发布。DeckID 为空时新建 deck，否则替换已有 deck 的文件。
type PublishInput struct {
	OwnerID     string
	DeckID      string
	Slug        string
	Title       string
	Description string
	FileName    string
	Data        []byte
	DisplayMode repository.DisplayMode
	Access      map[string]any
	ExpiresAt   *time.Time
}

// PublishResult 返回发布后的记录；Pending 表示远程转换已转入后台继续执行。
type PublishResult struct {
	Deck    *repository.DeckRecord
	Pending bool
}

// publishRun 保存一次发布过程中的中间状态。
type publishRun struct {
	in       PublishInput
	fileType repository.FileType
	mode     repository.DisplayMode
	slug     string
	existing *repository.DeckRecord
	deckID   string
	version  int64
	source   storage.Location
}

func (r *publishRun) replacing() bool { return r.existing != nil }

func (r *publishRun) path() string {
	switch {
	case r.mode == repository.DisplayModeRaw:
		return pathRaw
	case r.fileType.Rasterizable():
		return pathRasterize
	default:
		return pathRemote
	}
}

// Publish 执行完整发布流程：
// 权限校验 → 上传源文件 → raw 直接完成 / PDF 本地渲染并上传页面 / 办公文档远程转换。
// 替换时在最终一次写入前不修改记录，失败后记录保持原状。
func (s *DeckService) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if s == nil || s.decks == nil || s.store == nil {
		return nil, errors.New("deck service not initialized")
	}

	start := s.now()
	run, err := s.prepare(ctx, in)
	if err != nil {
		publishTotal.WithLabelValues("unknown", resultRejected).Inc()
		return nil, err
	}
	path := run.path()

	result, err := s.publish(ctx, run)
	publishDuration.WithLabelValues(path).Observe(s.now().Sub(start).Seconds())
	switch {
	case err != nil:
		publishTotal.WithLabelValues(path, resultFailure).Inc()
		s.log.Error("publish failed",
			zap.String("deckId", run.deckID),
			zap.String("ownerId", in.OwnerID),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	case result.Pending:
		publishTotal.WithLabelValues(path, resultPending).Inc()
	default:
		publishTotal.WithLabelValues(path, resultSuccess).Inc()
	}
	return result, nil
}

// prepare 完成全部校验，任何上传之前返回输入、权限与 slug 冲突错误。
func (s *DeckService) prepare(ctx context.Context, in PublishInput) (*publishRun, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrForbidden)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	ft, err := DetectFileType(in.FileName)
	if err != nil {
		return nil, err
	}
	mode := in.DisplayMode
	if mode == "" {
		mode = repository.DisplayModeInteractive
	}

	if err := s.checkPlan(ctx, in.OwnerID, ft, mode); err != nil {
		return nil, err
	}

	run := &publishRun{in: in, fileType: ft, mode: mode}

	if in.DeckID != "" {
		existing, err := s.loadOwned(ctx, in.OwnerID, in.DeckID)
		if err != nil {
			return nil, err
		}
		run.existing = existing
		run.deckID = existing.ID
		run.slug = existing.Slug
	} else {
		slug, err := normalizeSlug(firstNonEmpty(in.Slug, in.Title, strings.TrimSuffix(filepath.Base(in.FileName), filepath.Ext(in.FileName))))
		if err != nil {
			return nil, err
		}
		run.slug = slug
		run.deckID = s.newID()
	}

	if !run.replacing() {
		_, err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) (*repository.DeckRecord, error) {
			return s.decks.GetBySlug(ctx, in.OwnerID, run.slug)
		})
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, run.slug)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("check slug: %w", err)
		}
	}

	run.version = s.now().UnixMilli()
	return run, nil
}

func (s *DeckService) publish(ctx context.Context, run *publishRun) (*PublishResult, error) {
	if err := s.uploadSource(ctx, run); err != nil {
		return nil, err
	}

	switch run.path() {
	case pathRaw:
		return s.publishRaw(ctx, run)
	case pathRasterize:
		return s.publishRasterized(ctx, run)
	default:
		return s.publishRemote(ctx, run)
	}
}

func (s *DeckService) uploadSource(ctx context.Context, run *publishRun) error {
	key := upload.SourceKey(run.in.OwnerID, run.slug, string(run.fileType), run.version)
	s.report(ctx, run.deckID, "uploading_source", 0, 1)

	loc, err := retry.Do(ctx, s.retryPolicy("write source"), func(ctx context.Context) (storage.Location, error) {
		return s.store.Write(ctx, key, bytes.NewReader(run.in.Data), run.fileType.ContentType())
	})
	if err != nil {
		return fmt.Errorf("upload source file: %w", err)
	}
	run.source = loc
	s.report(ctx, run.deckID, "uploading_source", 1, 1)
	return nil
}

// publishRaw 不渲染页面，直接以 PROCESSED 状态落库。
func (s *DeckService) publishRaw(ctx context.Context, run *publishRun) (*PublishResult, error) {
	status := repository.DeckStatusProcessed
	if !run.replacing() {
		deck, err := s.createDeck(ctx, run, status)
		if err != nil {
			return nil, err
		}
		s.report(ctx, deck.ID, "done", 0, 0)
		return &PublishResult{Deck: deck}, nil
	}

	update := s.sourceUpdate(run)
	empty := []repository.SlidePage{}
	update.Pages = &empty
	update.Status = &status
	deck, err := s.finalize(ctx, run, update)
	if err != nil {
		return nil, err
	}
	return &PublishResult{Deck: deck}, nil
}

// publishRasterized 渲染 PDF 并上传全部页面，最后一次写入 pages 与状态。
func (s *DeckService) publishRasterized(ctx context.Context, run *publishRun) (*PublishResult, error) {
	if s.rasterizer == nil || s.uploader == nil {
		return nil, errors.New("rasterizer not configured")
	}

	if !run.replacing() {
		if _, err := s.createDeck(ctx, run, repository.DeckStatusPending); err != nil {
			return nil, err
		}
	} else {
		s.purgePages(ctx, run.in.OwnerID, run.slug)
	}

	blobs, err := s.rasterizer.Rasterize(ctx, run.in.Data, func(page, total int) {
		s.report(ctx, run.deckID, "rasterizing", page, total)
	})
	if err != nil {
		s.discardSource(ctx, run)
		return nil, fmt.Errorf("render pages: %w", err)
	}

	owner, slug, version := run.in.OwnerID, run.slug, run.version
	urls, err := s.uploader.UploadAll(ctx, blobs, func(i int) string {
		return upload.PageKey(owner, slug, i+1, version)
	}, upload.Options{
		Concurrency: s.opts.UploadConcurrency,
		ContentType: s.rasterizer.ContentType(),
		OnProgress: func(done, total int) {
			s.report(ctx, run.deckID, "uploading_pages", done, total)
		},
	})
	if err != nil {
		var batchErr *upload.BatchError
		if errors.As(err, &batchErr) {
			s.deleteOrphans(ctx, batchErr.Uploaded)
		}
		s.discardSource(ctx, run)
		return nil, fmt.Errorf("upload pages: %w", err)
	}

	pages := make([]repository.SlidePage, len(urls))
	for i, u := range urls {
		pages[i] = repository.SlidePage{ImageURL: u, PageNumber: i + 1}
	}

	status := repository.DeckStatusProcessed
	update := repository.DeckUpdate{Pages: &pages, Status: &status}
	if run.replacing() {
		update = s.sourceUpdate(run)
		update.Pages = &pages
		update.Status = &status
	}
	deck, err := s.finalize(ctx, run, update)
	if err != nil {
		return nil, err
	}
	return &PublishResult{Deck: deck}, nil
}

// publishRemote 先落库源文件字段（PENDING），再在有限时间内等待远程转换。
func (s *DeckService) publishRemote(ctx context.Context, run *publishRun) (*PublishResult, error) {
	if s.converter == nil {
		return nil, errors.New("remote conversion not configured")
	}

	if !run.replacing() {
		if _, err := s.createDeck(ctx, run, repository.DeckStatusPending); err != nil {
			return nil, err
		}
	} else {
		status := repository.DeckStatusPending
		update := s.sourceUpdate(run)
		update.Status = &status
		if err := s.writeUpdate(ctx, run.deckID, update); err != nil {
			return nil, err
		}
		s.dropOldSource(ctx, run)
		s.purgePages(ctx, run.in.OwnerID, run.slug)
	}

	s.report(ctx, run.deckID, "converting", 0, 0)
	_, pending, err := s.convertBounded(ctx, run.deckID)
	if err != nil {
		return nil, fmt.Errorf("remote conversion: %w", err)
	}

	deck, err := s.reload(ctx, run.deckID)
	if err != nil {
		return nil, err
	}
	if !pending {
		s.report(ctx, run.deckID, "done", len(deck.Pages), len(deck.Pages))
	}
	return &PublishResult{Deck: deck, Pending: pending}, nil
}

type conversionOutcome struct {
	res *convert.Result
	err error
}

// convertBounded 最多等待 ConvertWait；超时后转换脱离请求上下文继续执行，直到 ConvertTimeout。
func (s *DeckService) convertBounded(ctx context.Context, deckID string) (*convert.Result, bool, error) {
	convCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ConvertTimeout)
	done := make(chan conversionOutcome, 1)
	go func() {
		defer cancel()
		res, err := s.converter.ConvertRemote(convCtx, deckID)
		done <- conversionOutcome{res: res, err: err}
	}()

	timer := time.NewTimer(s.opts.ConvertWait)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.res, false, out.err
	case <-timer.C:
	case <-ctx.Done():
	}

	s.log.Info("remote conversion handed off",
		zap.String("deckId", deckID),
		zap.Duration("waited", s.opts.ConvertWait),
		zap.Duration("timeout", s.opts.ConvertTimeout))
	return nil, true, nil
}

// ConvertDeck 对已存在的 deck 重新执行远程转换，供 HTTP 转换端点使用。
func (s *DeckService) ConvertDeck(ctx context.Context, ownerID, deckID string) (*convert.Result, error) {
	if s.converter == nil {
		return nil, &convert.Error{Code: convert.CodeConfig, Message: "remote conversion not configured"}
	}
	deck, err := s.loadOwned(ctx, ownerID, deckID)
	if err != nil {
		return nil, err
	}
	if deck.FileType.Rasterizable() {
		return nil, fmt.Errorf("%w: %s decks are rendered locally", ErrInvalidInput, deck.FileType)
	}
	if deck.DisplayMode == repository.DisplayModeRaw {
		return nil, fmt.Errorf("%w: raw decks have no pages", ErrInvalidInput)
	}
	if err := s.checkPlan(ctx, ownerID, deck.FileType, deck.DisplayMode); err != nil {
		return nil, err
	}

	s.purgePages(ctx, ownerID, deck.Slug)
	return s.converter.ConvertRemote(ctx, deckID)
}

// checkPlan 解析 owner 的订阅等级并校验是否允许该格式与展示模式。
func (s *DeckService) checkPlan(ctx context.Context, ownerID string, ft repository.FileType, mode repository.DisplayMode) error {
	tier := TierFree
	if s.tiers != nil {
		var err error
		tier, err = s.tiers.Tier(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("resolve plan: %w", err)
		}
	}
	return CheckEntitlement(tier, ft, mode)
}

func (s *DeckService) createDeck(ctx context.Context, run *publishRun, status repository.DeckStatus) (*repository.DeckRecord, error) {
	now := s.now().UTC()
	record := &repository.DeckRecord{
		ID:          run.deckID,
		OwnerID:     run.in.OwnerID,
		Slug:        run.slug,
		Title:       firstNonEmpty(run.in.Title, run.slug),
		Description: run.in.Description,
		FileURL:     run.source.URL,
		FilePath:    run.source.Path,
		Pages:       []repository.SlidePage{},
		Status:      status,
		FileType:    run.fileType,
		DisplayMode: run.mode,
		FileSize:    int64(len(run.in.Data)),
		Access:      normalizeAccess(run.in.Access),
		ExpiresAt:   run.in.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := retry.Do(ctx, s.retryPolicy("create deck"), func(ctx context.Context) (*repository.DeckRecord, error) {
		return s.decks.Create(ctx, record)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, run.slug)
		}
		return nil, fmt.Errorf("create deck: %w", err)
	}
	return created, nil
}

// sourceUpdate 返回替换源文件时需要写入的字段，可选的元数据一并带上。
func (s *DeckService) sourceUpdate(run *publishRun) repository.DeckUpdate {
	size := int64(len(run.in.Data))
	ft := run.fileType
	mode := run.mode
	update := repository.DeckUpdate{
		FileURL:     &run.source.URL,
		FilePath:    &run.source.Path,
		FileType:    &ft,
		DisplayMode: &mode,
		FileSize:    &size,
		Access:      run.in.Access,
		ExpiresAt:   run.in.ExpiresAt,
	}
	if run.in.Title != "" {
		update.Title = &run.in.Title
	}
	if run.in.Description != "" {
		update.Description = &run.in.Description
	}
	return update
}

// finalize 是发布的最后一次记录写入，成功后清理被替换的旧源文件。
func (s *DeckService) finalize(ctx context.Context, run *publishRun, update repository.DeckUpdate) (*repository.DeckRecord, error) {
	if err := s.writeUpdate(ctx, run.deckID, update); err != nil {
		if run.replacing() {
			s.discardSource(ctx, run)
		}
		return nil, err
	}
	if run.replacing() {
		s.dropOldSource(ctx, run)
	}

	deck, err := s.reload(ctx, run.deckID)
	if err != nil {
		return nil, err
	}
	s.report(ctx, run.deckID, "done", len(deck.Pages), len(deck.Pages))
	return deck, nil
}

func (s *DeckService) writeUpdate(ctx context.Context, id string, update repository.DeckUpdate) error {
	err := retry.Run(ctx, s.retryPolicy("update deck"), func(ctx context.Context) error {
		return s.decks.Update(ctx, id, update)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update deck: %w", err)
	}
	return nil
}

func (s *DeckService) reload(ctx context.Context, id string) (*repository.DeckRecord, error) {
	deck, err := retry.Do(ctx, s.retryPolicy("load deck"), func(ctx context.Context) (*repository.DeckRecord, error) {
		return s.decks.GetByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load deck: %w", err)
	}
	return deck, nil
}

// loadOwned 读取 deck 并校验归属。
func (s *DeckService) loadOwned(ctx context.Context, ownerID, id string) (*repository.DeckRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrForbidden)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing deck id", ErrInvalidInput)
	}
	deck, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if deck.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return deck, nil
}

// purgePages 删除 slug 下已有的全部页面图片，失败只记录日志。
func (s *DeckService) purgePages(ctx context.Context, ownerID, slug string) {
	prefix := upload.PagePrefix(ownerID, slug)
	objects, err := retry.Do(ctx, s.retryPolicy("list stale pages"), func(ctx context.Context) ([]storage.ObjectInfo, error) {
		return s.store.List(ctx, prefix)
	})
	if err != nil {
		staleCleanupFailures.Inc()
		s.log.Warn("list stale pages failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}

	for _, obj := range objects {
		err := retry.Run(ctx, s.retryPolicy("delete stale page"), func(ctx context.Context) error {
			return s.store.Delete(ctx, obj.Key)
		})
		if err != nil {
			staleCleanupFailures.Inc()
			s.log.Warn("delete stale page failed", zap.String("key", obj.Key), zap.Error(err))
		}
	}
	if len(objects) > 0 {
		s.log.Debug("stale pages purged", zap.String("prefix", prefix), zap.Int("count", len(objects)))
	}
}

// deleteOrphans 补偿删除批量上传失败前已写入的对象。请求被取消后仍然执行。
func (s *DeckService) deleteOrphans(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("orphan cleanup failed, left for reconcile", zap.String("key", key), zap.Error(err))
			continue
		}
		orphansDeleted.Inc()
	}
}

// discardSource 替换失败时删除本次上传、尚未被记录引用的新源文件。
func (s *DeckService) discardSource(ctx context.Context, run *publishRun) {
	if !run.replacing() || run.source.Path == "" {
		return
	}
	s.deleteOrphans(ctx, []string{run.source.Path})
}

// dropOldSource 在记录指向新源文件后删除旧的源文件。
func (s *DeckService) dropOldSource(ctx context.Context, run *publishRun) {
	old := run.existing.FilePath
	if old == "" || old == run.source.Path {
		return
	}
	s.deleteOrphans(ctx, []string{old})
}

func (s *DeckService) report(ctx context.Context, deckID, stage string, done, total int) {
	if s.progress == nil || ctx.Err() != nil {
		return
	}
	ev := events.Progress{DeckID: deckID, Stage: stage, Done: done, Total: total}
	if err := s.progress.Publish(ctx, ev); err != nil {
		s.log.Debug("progress publish failed", zap.String("deckId", deckID), zap.Error(err))
	}
}

func (s *DeckService) retryPolicy(op string) retry.Policy {
	p := s.opts.Retry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		s.log.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return p
}

// GetDeck 返回调用者自己的 deck。
func (s *DeckService) GetDeck(ctx context.Context, ownerID, id string) (*repository.DeckRecord, error) {
	return s.loadOwned(ctx, ownerID, id)
}

// ListDecks 分页列出调用者的 deck。
func (s *DeckService) ListDecks(ctx context.Context, ownerID string, params repository.ListDecksParams) ([]repository.DeckRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrForbidden)
	}
	return retry.Do(ctx, s.retryPolicy("list decks"), func(ctx context.Context) ([]repository.DeckRecord, error) {
		return s.decks.ListByOwner(ctx, ownerID, params)
	})
}

// DetailsInput 是不涉及文件的元数据修改，nil 字段保持不变。
type DetailsInput struct {
	Title       *string
	Description *string
	Access      map[string]any
	ExpiresAt   *time.Time
}

// UpdateDetails 只修改元数据与透传字段，不访问对象存储。
func (s *DeckService) UpdateDetails(ctx context.Context, ownerID, id string, in DetailsInput) (*repository.DeckRecord, error) {
	if _, err := s.loadOwned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
	}

	update := repository.DeckUpdate{
		Title:       in.Title,
		Description: in.Description,
		Access:      in.Access,
		ExpiresAt:   in.ExpiresAt,
	}
	if update.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if err := s.writeUpdate(ctx, id, update); err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

// OpenSource 打开 deck 的原始文件，调用方负责关闭。
func (s *DeckService) OpenSource(ctx context.Context, ownerID, id string) (io.ReadCloser, *repository.DeckRecord, error) {
	deck, err := s.loadOwned(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	if deck.FilePath == "" {
		return nil, nil, ErrNotFound
	}

	rc, err := retry.Do(ctx, s.retryPolicy("open source"), func(ctx context.Context) (io.ReadCloser, error) {
		return s.store.Read(ctx, deck.FilePath)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open source file: %w", err)
	}
	return rc, deck, nil
}

const maxSlugLen = 80

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeSlug 转为小写，非字母数字字符折叠为单个连字符。
func normalizeSlug(raw string) (string, error) {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "", fmt.Errorf("%w: slug is required", ErrInvalidInput)
	}
	return slug, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func normalizeAccess(access map[string]any) map[string]any {
	if access == nil {
		return map[string]any{}
	}
	return access
}
