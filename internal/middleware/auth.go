package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

// OwnerContextKey 是存储在 context 中的 owner ID 的键。
type OwnerContextKey struct{}

// WithOwnerID 返回携带 owner ID 的 context。
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerContextKey{}, ownerID)
}

// APIKeyAuth 创建 API Key 鉴权中间件。
// 期望请求头格式：Authorization: ApiKey <token>
// 验证成功后将由 API Key 派生的 owner_id 存入 context。owner_id 会出现在公开的对象 URL 中，不能是 key 本身。
func APIKeyAuth(validKeys []string) func(http.Handler) http.Handler {
	keySet := make(map[string]struct{}, len(validKeys))
	for _, key := range validKeys {
		trimmed := strings.TrimSpace(key)
		if trimmed != "" {
			keySet[trimmed] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			// 期望格式: "ApiKey <token>"
			const prefix = "ApiKey "
			if !strings.HasPrefix(authHeader, prefix) {
				writeAuthError(w, http.StatusUnauthorized, "invalid Authorization format, expected: ApiKey <token>")
				return
			}

			apiKey := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			if apiKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "empty API key")
				return
			}

			if _, valid := keySet[apiKey]; !valid {
				writeAuthError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), OwnerIDForAPIKey(apiKey))))
		})
	}
}

// OwnerIDForAPIKey 返回 API Key 对应的稳定 owner ID。
func OwnerIDForAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "key-" + hex.EncodeToString(sum[:8])
}

// StaticOwner 用于 AUTH_MODE=none 的本地开发，所有请求归属同一个 owner。
func StaticOwner(ownerID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
		})
	}
}

// GetOwnerID 从 context 中获取经过鉴权的 owner ID。
func GetOwnerID(ctx context.Context) string {
	if v, ok := ctx.Value(OwnerContextKey{}).(string); ok {
		return v
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("WWW-Authenticate", `ApiKey realm="SlideDrop API"`)
	writeJSONError(w, status, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
