package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	if got := key(3, "u1", "status=OPEN"); got != "projects:3:u1:status=OPEN" {
		t.Fatalf("Unexpected key %q", got)
	}
}

func TestUnreachableRedisIsAMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := New(rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	var dst []string
	slot, hit := c.Get(ctx, "u1", "q", &dst)
	if hit {
		t.Fatal("Expected a miss when redis is unreachable")
	}
	if len(slot) != 0 {
		t.Fatalf("Expected no slot without a generation, got %q", slot)
	}

	c.Set(ctx, slot, []string{"a"})
	c.Invalidate(ctx)
}

func TestNop(t *testing.T) {
	var n Nop
	n.Set(context.Background(), "slot", 1)
	var dst int
	if _, hit := n.Get(context.Background(), "u", "q", &dst); hit {
		t.Fatal("Nop cache returned a hit")
	}
}
