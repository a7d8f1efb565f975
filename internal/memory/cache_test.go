package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/convo"
)

func startCache(t *testing.T) *ContextCache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	opts, err := redis.ParseURL("redis://" + endpoint)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return NewContextCacheFromClient(client, zap.NewNop())
}

func TestContextCacheRoundTrip(t *testing.T) {
	c := startCache(t)
	ctx := context.Background()

	c.Append(ctx, "c1", convo.Turn{Speaker: "alice", UserID: "u1", Text: "first", Timestamp: time.Now()})
	c.Append(ctx, "c1", convo.Turn{Speaker: "snark", Text: "second", FromBot: true, Timestamp: time.Now()})

	turns, err := c.Recent(ctx, "c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Text != "first" || turns[1].Text != "second" {
		t.Errorf("turns out of order: %q, %q", turns[0].Text, turns[1].Text)
	}
	if !turns[1].FromBot {
		t.Error("bot flag lost in the round trip")
	}
}

func TestContextCacheChannelsIsolated(t *testing.T) {
	c := startCache(t)
	ctx := context.Background()

	c.Append(ctx, "c1", convo.Turn{Speaker: "alice", Text: "in c1"})

	turns, err := c.Recent(ctx, "c2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("channel c2 leaked %d turns from c1", len(turns))
	}
}

func TestContextCacheTrimsWindow(t *testing.T) {
	c := startCache(t)
	ctx := context.Background()

	for i := 0; i < ctxCacheMax+10; i++ {
		c.Append(ctx, "c1", convo.Turn{Speaker: "alice", Text: fmt.Sprintf("msg-%d", i)})
	}

	turns, err := c.Recent(ctx, "c1", 0) // zero forces the cap
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != ctxCacheMax {
		t.Fatalf("got %d turns, want cap %d", len(turns), ctxCacheMax)
	}
	// Oldest entries fell off the tail.
	if turns[len(turns)-1].Text != fmt.Sprintf("msg-%d", ctxCacheMax+9) {
		t.Errorf("newest turn = %q", turns[len(turns)-1].Text)
	}
}

func TestContextCacheSkipsCorruptEntries(t *testing.T) {
	c := startCache(t)
	ctx := context.Background()

	c.Append(ctx, "c1", convo.Turn{Speaker: "alice", Text: "good"})
	if err := c.client.LPush(ctx, ctxKeyPrefix+"c1", "{not json").Err(); err != nil {
		t.Fatal(err)
	}

	turns, err := c.Recent(ctx, "c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Text != "good" {
		t.Errorf("turns = %+v, want the one valid entry", turns)
	}
}
