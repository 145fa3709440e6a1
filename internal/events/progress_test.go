package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRedisPublisher_Channel(t *testing.T) {
	if got := NewRedisPublisher(nil, "").Channel("d1"); got != "deck-progress:d1" {
		t.Fatalf("unexpected default channel %q", got)
	}
	if got := NewRedisPublisher(nil, "slides").Channel("d1"); got != "slides:d1" {
		t.Fatalf("unexpected channel %q", got)
	}
}

func TestRedisPublisher_Uninitialized(t *testing.T) {
	if err := NewRedisPublisher(nil, "").Publish(context.Background(), Progress{DeckID: "d1"}); err == nil {
		t.Fatal("expected error without redis client")
	}
}

func TestProgress_JSON(t *testing.T) {
	raw, err := json.Marshal(Progress{DeckID: "d1", Stage: "rasterize", Done: 2, Total: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"deck_id":"d1","stage":"rasterize","done":2,"total":3}` {
		t.Fatalf("unexpected payload %s", raw)
	}
}
