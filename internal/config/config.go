package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	Env                string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitPublishes int // 发布与修改类请求的独立配额，0 表示与读取共用
	RateLimitWindow    time.Duration
	MaxUploadBytes     int64
	// 数据库配置
	DBDriver   string // "postgres" 或 "sqlite"
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string
	// 鉴权配置
	AuthMode          string   // "apikey"、"supabase" 或 "none"
	APIKeys           []string // 有效的 API Keys 列表
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string
	// 存储配置
	StorageDriver    string // "local"、"s3" 或 "gcs"
	StorageDir       string
	StoragePublicURL string // 对象公开访问前缀
	S3Endpoint       string // S3/MinIO 端点，不含协议
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3Region         string
	S3UseSSL         bool // 是否使用 HTTPS
	S3PathStyle      bool // 是否使用路径风格访问（MinIO 需要设为 true）
	GCSBucket        string
	// Redis（可选），用于等级缓存与进度事件
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TierCacheTTL          time.Duration
	ProgressChannelPrefix string
	// 远程转换
	ConvertAPIURL    string
	ConvertAPISecret string
	ConvertWait      time.Duration
	ConvertTimeout   time.Duration
	// 发布流水线
	UploadConcurrency  int
	RenderScale        float64
	WebPQuality        int
	PdftoppmPath       string
	RetryMax           int
	RetryInitialDelay  time.Duration
	RetryBackoffFactor float64
	ReconcileGrace     time.Duration
}

// Load 从环境变量加载配置，并提供默认值。
func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 60)
	if err != nil {
		return nil, err
	}

	rateLimitPublishes, err := parseIntEnv("RATE_LIMIT_PUBLISHES", 10)
	if err != nil {
		return nil, err
	}

	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 100)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	dbDriver := strings.ToLower(envOrDefault("DB_DRIVER", "postgres"))
	if dbDriver != "postgres" && dbDriver != "sqlite" {
		return nil, fmt.Errorf("不支持的 DB_DRIVER: %s", dbDriver)
	}

	// 鉴权配置
	authMode := strings.ToLower(envOrDefault("AUTH_MODE", "apikey"))
	apiKeys := parseList(os.Getenv("API_KEYS"))
	if len(apiKeys) == 0 {
		// 开发环境默认 key
		apiKeys = []string{"dev-api-key-123456"}
	}
	switch authMode {
	case "apikey", "supabase", "none":
	default:
		return nil, fmt.Errorf("不支持的 AUTH_MODE: %s", authMode)
	}
	if authMode == "supabase" && os.Getenv("SUPABASE_URL") == "" && os.Getenv("SUPABASE_JWT_SECRET") == "" {
		return nil, fmt.Errorf("AUTH_MODE=supabase 需要 SUPABASE_URL 或 SUPABASE_JWT_SECRET")
	}

	// 存储配置
	storageDriver := strings.ToLower(envOrDefault("STORAGE_DRIVER", "local"))
	switch storageDriver {
	case "local", "s3", "gcs":
	default:
		return nil, fmt.Errorf("不支持的 STORAGE_DRIVER: %s", storageDriver)
	}
	storageDir := envOrDefault("STORAGE_DIR", "./data")
	publicURL := os.Getenv("STORAGE_PUBLIC_URL")
	if storageDriver == "local" {
		if err := ensureDir(storageDir); err != nil {
			return nil, fmt.Errorf("确保存储目录失败: %w", err)
		}
		if publicURL == "" {
			publicURL = "http://localhost:" + port + "/assets"
		}
	}

	redisDB, err := parseIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	tierCacheTTL, err := parseDurationEnv("TIER_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	convertWait, err := parseDurationEnv("CONVERT_WAIT", 25*time.Second)
	if err != nil {
		return nil, err
	}
	convertTimeout, err := parseDurationEnv("CONVERT_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	uploadConcurrency, err := parseIntEnv("UPLOAD_CONCURRENCY", 3)
	if err != nil {
		return nil, err
	}
	renderScale, err := parseFloatEnv("RENDER_SCALE", 1.5)
	if err != nil {
		return nil, err
	}
	webpQuality, err := parseIntEnv("WEBP_QUALITY", 80)
	if err != nil {
		return nil, err
	}
	retryMax, err := parseIntEnv("RETRY_MAX", 3)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDurationEnv("RETRY_INITIAL_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	retryBackoff, err := parseFloatEnv("RETRY_BACKOFF_FACTOR", 2)
	if err != nil {
		return nil, err
	}
	reconcileGrace, err := parseDurationEnv("RECONCILE_GRACE", time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPPort:              port,
		Env:                   envOrDefault("APP_ENV", "dev"),
		CORSAllowedOrigins:    corsOrigins,
		RateLimitRequests:     rateLimitRequests,
		RateLimitPublishes:    rateLimitPublishes,
		RateLimitWindow:       rateLimitWindow,
		MaxUploadBytes:        int64(maxUploadMB) * 1024 * 1024,
		DBDriver:              dbDriver,
		DBHost:                envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:                dbPort,
		DBUser:                envOrDefault("DB_USER", "slidedrop"),
		DBPassword:            envOrDefault("DB_PASSWORD", "slidedrop"),
		DBName:                envOrDefault("DB_NAME", "slidedrop"),
		DBSSLMode:             envOrDefault("DB_SSL_MODE", "disable"),
		SQLitePath:            envOrDefault("SQLITE_PATH", "./slidedrop.db"),
		AuthMode:              authMode,
		APIKeys:               apiKeys,
		SupabaseURL:           os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:       os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseJWTSecret:     os.Getenv("SUPABASE_JWT_SECRET"),
		StorageDriver:         storageDriver,
		StorageDir:            storageDir,
		StoragePublicURL:      publicURL,
		S3Endpoint:            envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:           envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:           envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:              envOrDefault("S3_BUCKET", "slidedrop"),
		S3Region:              envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:              parseBoolEnv("S3_USE_SSL", false),
		S3PathStyle:           parseBoolEnv("S3_PATH_STYLE", true),
		GCSBucket:             os.Getenv("GCS_BUCKET"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		TierCacheTTL:          tierCacheTTL,
		ProgressChannelPrefix: envOrDefault("PROGRESS_CHANNEL_PREFIX", "deck-progress"),
		ConvertAPIURL:         envOrDefault("CONVERT_API_URL", "https://v2.convertapi.com"),
		ConvertAPISecret:      os.Getenv("CONVERT_API_SECRET"),
		ConvertWait:           convertWait,
		ConvertTimeout:        convertTimeout,
		UploadConcurrency:     uploadConcurrency,
		RenderScale:           renderScale,
		WebPQuality:           webpQuality,
		PdftoppmPath:          envOrDefault("PDFTOPPM_PATH", "pdftoppm"),
		RetryMax:              retryMax,
		RetryInitialDelay:     retryDelay,
		RetryBackoffFactor:    retryBackoff,
		ReconcileGrace:        reconcileGrace,
	}, nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value < 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value < 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// SQLiteDSN 打开外键约束并使用 WAL 日志模式。
func (c *Config) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", c.SQLitePath)
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
