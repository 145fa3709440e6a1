package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute 汇总所有没有命中路由的请求，防止扫描路径撑爆标签基数。
const unmatchedRoute = "unmatched"

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slidedrop",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status class",
		},
		[]string{"method", "route", "status"},
	)

	httpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slidedrop",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency; publishes include rasterization and upload",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	// deckUploadBytes 只统计 multipart 发布请求携带的文件体积
	deckUploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slidedrop",
			Name:      "deck_upload_bytes",
			Help:      "Size of multipart deck publish requests",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
		[]string{"route"},
	)

	httpResponseBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slidedrop",
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"route"},
	)

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slidedrop",
		Name:      "http_in_flight_requests",
		Help:      "HTTP requests currently being served",
	})
)

// Metrics 按 chi 路由模式记录请求数、耗时与 deck 上传体积。
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routeLabel(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			httpRequests.WithLabelValues(r.Method, route, statusClass(status)).Inc()
			httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			httpResponseBytes.WithLabelValues(route).Observe(float64(ww.BytesWritten()))

			if r.ContentLength > 0 && isMultipart(r) {
				deckUploadBytes.WithLabelValues(route).Observe(float64(r.ContentLength))
			}
		})
	}
}

// routeLabel 在 handler 执行完后读取路由模式，此时子路由已经匹配完毕。
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
