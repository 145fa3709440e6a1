package service

import (
	"context"
	"errors"
	"time"

	"slidedrop/internal/cache"
	"slidedrop/internal/repository"
	"slidedrop/internal/retry"

	"go.uber.org/zap"
)

// TierResolver 返回用户当前的订阅等级。
type TierResolver interface {
	Tier(ctx context.Context, userID string) (Tier, error)
}

// CachedTiers 先查缓存，未命中时读取账户表并回填。
type CachedTiers struct {
	accounts repository.AccountRepository
	cache    cache.Store
	ttl      time.Duration
	policy   retry.Policy
	log      *zap.Logger
}

func NewCachedTiers(accounts repository.AccountRepository, store cache.Store, ttl time.Duration, policy retry.Policy, log *zap.Logger) *CachedTiers {
	if store == nil {
		store = cache.NewMemory()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedTiers{accounts: accounts, cache: store, ttl: ttl, policy: policy, log: log.Named("tiers")}
}

func tierCacheKey(userID string) string { return "tier:" + userID }

func (c *CachedTiers) Tier(ctx context.Context, userID string) (Tier, error) {
	key := tierCacheKey(userID)

	cached, err := c.cache.Get(ctx, key)
	if err == nil {
		return ParseTier(cached), nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		// 缓存不可用时直接回源
		c.log.Warn("tier cache read failed", zap.String("userId", userID), zap.Error(err))
	}

	raw, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.accounts.Tier(ctx, userID)
	})
	if err != nil {
		return "", err
	}

	tier := ParseTier(raw)
	if err := c.cache.Set(ctx, key, string(tier), c.ttl); err != nil {
		c.log.Warn("tier cache write failed", zap.String("userId", userID), zap.Error(err))
	}
	return tier, nil
}
