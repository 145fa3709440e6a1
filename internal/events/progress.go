package events

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Progress 是发布流水线的进度事件。
type Progress struct {
	DeckID string `json:"deck_id"`
	Stage  string `json:"stage"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
}

// RedisPublisher 把进度事件发布到 {prefix}:{deckID} 频道。
type RedisPublisher struct {
	rdb    *goredis.Client
	prefix string
}

func NewRedisPublisher(rdb *goredis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "deck-progress"
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel 返回 deck 对应的频道名。
func (p *RedisPublisher) Channel(deckID string) string {
	return p.prefix + ":" + deckID
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Progress) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("redis progress publisher not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.Channel(ev.DeckID), raw).Err()
}
