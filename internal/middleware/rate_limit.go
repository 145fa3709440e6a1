package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Budget 表示 Window 内最多允许 Requests 次请求，令牌按该速率匀速补充。
type Budget struct {
	Requests int
	Window   time.Duration
}

func (b Budget) enabled() bool {
	return b.Requests > 0 && b.Window > 0
}

func (b Budget) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(b.Window/time.Duration(b.Requests)), b.Requests)
}

// RateLimit 按调用方限流。读取类请求消耗 reads 配额，
// 发布与修改类请求（POST、PUT、PATCH、DELETE）消耗单独的 writes 配额，
// 避免频繁发布挤占查看端的读取额度。writes 未配置时与 reads 共用同一个桶。
// 挂在鉴权之后时按 owner 计数，否则按客户端 IP 计数。
func RateLimit(reads, writes Budget) func(http.Handler) http.Handler {
	if !reads.enabled() && !writes.enabled() {
		return passthrough
	}

	buckets := &callerBuckets{
		reads:   reads,
		writes:  writes,
		callers: make(map[string]*callerBucket),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wait, ok := buckets.take(clientKey(r), isWrite(r.Method), time.Now())
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// retryAfterSeconds 向上取整，至少 1 秒。
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type callerBuckets struct {
	mu      sync.Mutex
	reads   Budget
	writes  Budget
	callers map[string]*callerBucket
}

type callerBucket struct {
	limiter *rate.Limiter
	seen    time.Time
	window  time.Duration
}

// take 尝试消耗一个令牌；失败时返回下一个令牌可用前需要等待的时长。
func (b *callerBuckets) take(caller string, write bool, now time.Time) (time.Duration, bool) {
	budget, class := b.reads, "read"
	if write && b.writes.enabled() {
		budget, class = b.writes, "write"
	}
	if !budget.enabled() {
		return 0, true
	}
	key := class + "|" + caller

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.callers[key]
	if !ok {
		if len(b.callers) >= 1024 {
			b.evictIdleLocked(now)
		}
		entry = &callerBucket{limiter: budget.newLimiter(), window: budget.Window}
		b.callers[key] = entry
	}
	entry.seen = now

	res := entry.limiter.ReserveN(now, 1)
	if !res.OK() {
		return budget.Window, false
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return wait, false
	}
	return 0, true
}

// evictIdleLocked 丢弃一个完整窗口内没有请求的调用方，此时其令牌桶已经回满。
func (b *callerBuckets) evictIdleLocked(now time.Time) {
	for key, entry := range b.callers {
		if now.Sub(entry.seen) > entry.window {
			delete(b.callers, key)
		}
	}
}

func clientKey(r *http.Request) string {
	if owner := GetOwnerID(r.Context()); owner != "" {
		return "owner:" + owner
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
