package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"slidedrop/internal/cache"
	"slidedrop/internal/repository"
	"slidedrop/internal/retry"
)

func TestCheckEntitlement(t *testing.T) {
	const (
		raw = repository.DisplayModeRaw
		ia  = repository.DisplayModeInteractive
	)
	cases := []struct {
		tier Tier
		ft   repository.FileType
		mode repository.DisplayMode
		want error
	}{
		{TierFree, repository.FileTypePDF, ia, nil},
		{TierFree, repository.FileTypePDF, raw, nil},
		{TierFree, repository.FileTypePPTX, raw, ErrNotEntitled},
		{TierStarter, repository.FileTypePPTX, raw, nil},
		{TierStarter, repository.FileTypeKey, ia, ErrNotEntitled},
		{TierPro, repository.FileTypeODP, ia, nil},
		{TierBusiness, repository.FileTypeDOC, ia, nil},
		{TierPro, repository.FileType("exe"), raw, ErrUnsupportedFileType},
		{TierPro, repository.FileTypePDF, repository.DisplayMode("grid"), ErrInvalidInput},
	}

	for _, tc := range cases {
		err := CheckEntitlement(tc.tier, tc.ft, tc.mode)
		if tc.want == nil && err != nil {
			t.Fatalf("%s/%s/%s: unexpected error %v", tc.tier, tc.ft, tc.mode, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s/%s/%s: expected %v, got %v", tc.tier, tc.ft, tc.mode, tc.want, err)
		}
	}
}

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{"": TierFree, "PRO": TierPro, " starter ": TierStarter, "enterprise": TierFree, "business": TierBusiness}
	for in, want := range cases {
		if got := ParseTier(in); got != want {
			t.Fatalf("ParseTier(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDetectFileType(t *testing.T) {
	if ft, err := DetectFileType("Deck.Final.PPTX"); err != nil || ft != repository.FileTypePPTX {
		t.Fatalf("unexpected %s %v", ft, err)
	}
	if _, err := DetectFileType("README"); !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
}

type countingAccounts struct {
	tier  string
	calls int
	fails int
}

func (a *countingAccounts) Tier(ctx context.Context, userID string) (string, error) {
	a.calls++
	if a.calls <= a.fails {
		return "", errors.New("dial tcp: connection refused")
	}
	return a.tier, nil
}

func TestCachedTiers(t *testing.T) {
	accounts := &countingAccounts{tier: "pro", fails: 1}
	tiers := NewCachedTiers(accounts, cache.NewMemory(), time.Minute, retry.Policy{MaxRetries: 2}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tier, err := tiers.Tier(ctx, "u1")
		if err != nil {
			t.Fatalf("Tier returned error: %v", err)
		}
		if tier != TierPro {
			t.Fatalf("expected pro, got %s", tier)
		}
	}
	// 第一次查询失败一次后重试成功，之后命中缓存
	if accounts.calls != 2 {
		t.Fatalf("expected 2 account lookups, got %d", accounts.calls)
	}
}
