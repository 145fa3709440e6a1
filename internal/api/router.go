package api

import (
	"net/http"
	"strings"

	"slidedrop/internal/config"
	sdmiddleware "slidedrop/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// localOwnerID 是 AUTH_MODE=none 时所有请求共享的 owner。
const localOwnerID = "local"

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg *config.Config, deckHandler *DeckHandler, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(sdmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(sdmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	// 本地存储时由本服务直接提供页面图片与源文件
	if cfg.StorageDriver == "local" {
		fs := http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.StorageDir)))
		r.Get("/assets/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			fs.ServeHTTP(w, r)
		})
	}

	if deckHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(cfg, log))
			// 先鉴权再限流，限流按 owner 计数
			r.Use(sdmiddleware.RateLimit(
				sdmiddleware.Budget{Requests: cfg.RateLimitRequests, Window: cfg.RateLimitWindow},
				sdmiddleware.Budget{Requests: cfg.RateLimitPublishes, Window: cfg.RateLimitWindow},
			))
			deckHandler.RegisterRoutes(r)
		})
	}

	return r
}

func authMiddleware(cfg *config.Config, log *zap.Logger) func(http.Handler) http.Handler {
	switch cfg.AuthMode {
	case "supabase":
		return sdmiddleware.SupabaseAuth(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseJWTSecret, log)
	case "none":
		log.Warn("authentication disabled, all requests share one owner", zap.String("owner", localOwnerID))
		return sdmiddleware.StaticOwner(localOwnerID)
	default:
		return sdmiddleware.APIKeyAuth(cfg.APIKeys)
	}
}
