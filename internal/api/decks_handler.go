package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slidedrop/internal/convert"
	"slidedrop/internal/middleware"
	"slidedrop/internal/render"
	"slidedrop/internal/repository"
	"slidedrop/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DeckService 是 handler 依赖的业务能力，由 *service.DeckService 实现。
type DeckService interface {
	Publish(ctx context.Context, in service.PublishInput) (*service.PublishResult, error)
	GetDeck(ctx context.Context, ownerID, id string) (*repository.DeckRecord, error)
	ListDecks(ctx context.Context, ownerID string, params repository.ListDecksParams) ([]repository.DeckRecord, error)
	UpdateDetails(ctx context.Context, ownerID, id string, in service.DetailsInput) (*repository.DeckRecord, error)
	OpenSource(ctx context.Context, ownerID, id string) (io.ReadCloser, *repository.DeckRecord, error)
	ConvertDeck(ctx context.Context, ownerID, id string) (*convert.Result, error)
	Reconcile(ctx context.Context, ownerID string) (*service.ReconcileReport, error)
}

// DeckHandler 提供 deck 相关的 HTTP 端点。
type DeckHandler struct {
	service        DeckService
	maxUploadBytes int64
	log            *zap.Logger
}

func NewDeckHandler(s DeckService, maxUploadBytes int64, log *zap.Logger) *DeckHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DeckHandler{service: s, maxUploadBytes: maxUploadBytes, log: log.Named("api")}
}

func (h *DeckHandler) RegisterRoutes(r chi.Router) {
	r.Route("/decks", func(r chi.Router) {
		r.Get("/", h.ListDecks)
		r.Post("/", h.CreateDeck)
		r.Post("/reconcile", h.Reconcile)
		r.Get("/{id}", h.GetDeck)
		r.Put("/{id}", h.ReplaceDeck)
		r.Patch("/{id}", h.UpdateDetails)
		r.Get("/{id}/source", h.DownloadSource)
		r.Post("/{id}/convert", h.ConvertDeck)
	})
}

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

const (
	defaultMaxUploadBytes int64 = 100 * 1024 * 1024 // 100MB
	multipartMemoryBudget int64 = 16 * 1024 * 1024
)

// CreateDeck 接受 multipart/form-data 上传并发布新 deck。
func (h *DeckHandler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	h.publish(w, r, "")
}

// ReplaceDeck 用新文件替换已有 deck 的内容，slug 保持不变。
func (h *DeckHandler) ReplaceDeck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deck id is required")
		return
	}
	h.publish(w, r, id)
}

func (h *DeckHandler) publish(w http.ResponseWriter, r *http.Request, deckID string) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}

	upload, status, err := readUpload(w, r, h.maxUploadBytes)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	access, err := parseAccessField(r.FormValue("access"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid access: "+err.Error())
		return
	}

	expiresAt, err := parseExpiresAt(r.FormValue("expires_at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expires_at: "+err.Error())
		return
	}

	result, err := h.service.Publish(r.Context(), service.PublishInput{
		OwnerID:     middleware.GetOwnerID(r.Context()),
		DeckID:      deckID,
		Slug:        strings.TrimSpace(r.FormValue("slug")),
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		FileName:    upload.fileName,
		Data:        upload.data,
		DisplayMode: repository.DisplayMode(strings.ToLower(strings.TrimSpace(r.FormValue("display_mode")))),
		Access:      access,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	code := http.StatusOK
	switch {
	case result.Pending:
		code = http.StatusAccepted
	case deckID == "":
		code = http.StatusCreated
	}
	writeJSON(w, code, envelope{Data: result.Deck})
}

// ListDecks 返回调用者的 deck 列表。
func (h *DeckHandler) ListDecks(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	params := repository.ListDecksParams{}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			params.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			params.Offset = offset
		}
	}

	statuses := r.URL.Query()["status"]
	if len(statuses) == 0 {
		if combined := r.URL.Query().Get("statuses"); combined != "" {
			statuses = strings.Split(combined, ",")
		}
	}
	for _, raw := range statuses {
		trimmed := strings.ToUpper(strings.TrimSpace(raw))
		if trimmed == "" {
			continue
		}
		params.Statuses = append(params.Statuses, repository.DeckStatus(trimmed))
	}

	decks, err := h.service.ListDecks(r.Context(), middleware.GetOwnerID(r.Context()), params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if decks == nil {
		decks = []repository.DeckRecord{}
	}

	writeJSON(w, http.StatusOK, envelope{Data: decks})
}

// GetDeck 返回单个 deck，远程转换转入后台后客户端轮询此端点。
func (h *DeckHandler) GetDeck(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	deck, err := h.service.GetDeck(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: deck})
}

type detailsRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Access      map[string]any `json:"access"`
	ExpiresAt   *time.Time     `json:"expires_at"`
}

// UpdateDetails 修改 deck 元数据，不涉及文件。
func (h *DeckHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	var req detailsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	deck, err := h.service.UpdateDetails(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id"), service.DetailsInput{
		Title:       req.Title,
		Description: req.Description,
		Access:      req.Access,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: deck})
}

// DownloadSource 返回 deck 的原始文件以供下载。
func (h *DeckHandler) DownloadSource(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	content, deck, err := h.service.OpenSource(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", deck.FileType.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", deck.Slug+"."+string(deck.FileType)))
	if deck.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(deck.FileSize, 10))
	}

	if _, err := io.Copy(w, content); err != nil {
		// 客户端可能已断开，无法再写入错误响应
		return
	}
}

type convertResponse struct {
	Error     bool   `json:"error"`
	Message   string `json:"message,omitempty"`
	PageCount int    `json:"pageCount,omitempty"`
}

// ConvertDeck 触发远程转换。无论成败都返回 200，结果体现在 error 字段中。
func (h *DeckHandler) ConvertDeck(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeJSON(w, http.StatusOK, convertResponse{Error: true, Message: "handler not initialized"})
		return
	}

	res, err := h.service.ConvertDeck(r.Context(), middleware.GetOwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusOK, convertResponse{Error: true, Message: conversionMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, convertResponse{Error: false, PageCount: res.PageCount})
}

// Reconcile 清理调用者命名空间下无人引用的对象。
func (h *DeckHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	report, err := h.service.Reconcile(r.Context(), middleware.GetOwnerID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: report})
}

func conversionMessage(err error) string {
	var ce *convert.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "deck not found"
	case errors.Is(err, service.ErrForbidden):
		return "deck belongs to another user"
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrNotEntitled):
		return err.Error()
	default:
		return "conversion failed"
	}
}

// writeServiceError 把业务错误映射为状态码，未知错误只记录日志不外泄细节。
func (h *DeckHandler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		pageErr *render.PageError
		convErr *convert.Error
	)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnsupportedFileType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrNotEntitled), errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrSlugTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &pageErr):
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("could not render page %d of %d", pageErr.Page, pageErr.Total))
	case errors.Is(err, render.ErrEmptyDocument):
		writeError(w, http.StatusUnprocessableEntity, "document has no pages")
	case errors.As(err, &convErr):
		writeError(w, http.StatusBadGateway, convErr.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

func parseAccessField(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var access map[string]any
	if err := json.Unmarshal([]byte(raw), &access); err != nil {
		return nil, err
	}
	return access, nil
}

func parseExpiresAt(raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
