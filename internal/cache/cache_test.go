package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := m.Get(ctx, "tier:u1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	_ = m.Set(ctx, "tier:u1", "pro", time.Minute)
	if v, err := m.Get(ctx, "tier:u1"); err != nil || v != "pro" {
		t.Fatalf("expected hit, got %q %v", v, err)
	}

	now = now.Add(time.Minute)
	if _, err := m.Get(ctx, "tier:u1"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemory_NoTTLAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.Set(ctx, "k", "v", 0)
	if v, err := m.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("expected hit, got %q %v", v, err)
	}
	_ = m.Delete(ctx, "k")
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}
