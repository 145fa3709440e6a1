package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected port %s", cfg.HTTPPort)
	}
	if cfg.UploadConcurrency != 3 {
		t.Fatalf("unexpected upload concurrency %d", cfg.UploadConcurrency)
	}
	if cfg.RetryMax != 3 || cfg.RetryInitialDelay != time.Second || cfg.RetryBackoffFactor != 2 {
		t.Fatalf("unexpected retry defaults: %d %v %v", cfg.RetryMax, cfg.RetryInitialDelay, cfg.RetryBackoffFactor)
	}
	if cfg.RenderScale != 1.5 || cfg.WebPQuality != 80 {
		t.Fatalf("unexpected render defaults: %v %d", cfg.RenderScale, cfg.WebPQuality)
	}
	if cfg.RateLimitRequests != 60 || cfg.RateLimitPublishes != 10 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d %d %v", cfg.RateLimitRequests, cfg.RateLimitPublishes, cfg.RateLimitWindow)
	}
	if cfg.MaxUploadBytes != 100*1024*1024 {
		t.Fatalf("unexpected max upload bytes %d", cfg.MaxUploadBytes)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("UPLOAD_CONCURRENCY", "5")
	t.Setenv("CONVERT_WAIT", "3s")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("API_KEYS", " a , ,b ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.UploadConcurrency != 5 {
		t.Fatalf("unexpected upload concurrency %d", cfg.UploadConcurrency)
	}
	if cfg.ConvertWait != 3*time.Second {
		t.Fatalf("unexpected convert wait %v", cfg.ConvertWait)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("unexpected db driver %s", cfg.DBDriver)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "a" || cfg.APIKeys[1] != "b" {
		t.Fatalf("unexpected api keys %v", cfg.APIKeys)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("RETRY_INITIAL_DELAY", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "RETRY_INITIAL_DELAY") {
		t.Fatalf("expected RETRY_INITIAL_DELAY error, got %v", err)
	}
}

func TestLoad_UnknownDrivers(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("STORAGE_DRIVER", "ftp")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "STORAGE_DRIVER") {
		t.Fatalf("expected STORAGE_DRIVER error, got %v", err)
	}

	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("AUTH_MODE", "oauth")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "AUTH_MODE") {
		t.Fatalf("expected AUTH_MODE error, got %v", err)
	}
}

func TestLoad_PublicURLDefaultsOnlyForLocal(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StoragePublicURL != "http://localhost:8080/assets" {
		t.Fatalf("unexpected local public url %q", cfg.StoragePublicURL)
	}

	t.Setenv("STORAGE_DRIVER", "s3")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StoragePublicURL != "" {
		t.Fatalf("s3 should derive its own public url, got %q", cfg.StoragePublicURL)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p@ss", DBHost: "db", DBPort: 5432, DBName: "decks", DBSSLMode: "disable"}
	if got := cfg.PostgresDSN(); got != "postgres://u:p%40ss@db:5432/decks?sslmode=disable" {
		t.Fatalf("unexpected dsn %s", got)
	}
}
