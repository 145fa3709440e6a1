package middleware

import (
	"net/http"
	"strings"
)

// corsPolicy 记录允许的来源。"https://*.example.com" 形式的条目匹配该域名下任意一级或多级子域名，
// 查看端嵌入到客户站点时常用这种写法。
type corsPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []originSuffix
}

type originSuffix struct {
	scheme string // 含 "://"
	domain string // 含前导 "."
}

func newCORSPolicy(origins []string) corsPolicy {
	p := corsPolicy{exact: map[string]struct{}{}}
	for _, origin := range origins {
		value := strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case value == "":
		case value == "*":
			p.any = true
		case strings.Contains(value, "://*."):
			scheme, domain, _ := strings.Cut(value, "*")
			p.suffixes = append(p.suffixes, originSuffix{scheme: scheme, domain: strings.ToLower(domain)})
		default:
			p.exact[strings.ToLower(value)] = struct{}{}
		}
	}
	return p
}

// allow 返回应写入 Access-Control-Allow-Origin 的值，不允许时返回空串。
func (p corsPolicy) allow(origin string) string {
	if origin == "" {
		return ""
	}
	if p.any {
		return "*"
	}
	normalized := strings.ToLower(origin)
	if _, ok := p.exact[normalized]; ok {
		return origin
	}
	for _, s := range p.suffixes {
		host, found := strings.CutPrefix(normalized, s.scheme)
		if found && len(host) > len(s.domain) && strings.HasSuffix(host, s.domain) {
			return origin
		}
	}
	return ""
}

// CORS 生成跨域中间件，查看端页面直接从浏览器读取 deck 与源文件。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newCORSPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			allowed := policy.allow(r.Header.Get("Origin"))
			if allowed == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Expose-Headers", "Location, Retry-After")
			// 通配来源不能携带凭据
			if allowed != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
