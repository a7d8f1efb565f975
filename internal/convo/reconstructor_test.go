package convo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/snarkbot/snark/internal/gateway"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	messages map[string]*gateway.InboundMessage
	history  []*gateway.InboundMessage
	histErr  error
}

func (f *fakeFetcher) FetchMessage(_ context.Context, _, _, messageID string) (*gateway.InboundMessage, error) {
	m, ok := f.messages[messageID]
	if !ok {
		return nil, errors.New("unknown message")
	}
	return m, nil
}

func (f *fakeFetcher) FetchHistory(_ context.Context, _, _ string, _ int, _ time.Time) ([]*gateway.InboundMessage, error) {
	return f.history, f.histErr
}

type fakeRecent struct {
	turns []Turn
	err   error
}

func (f *fakeRecent) Recent(_ context.Context, _ string, _ int) ([]Turn, error) {
	return f.turns, f.err
}

func msg(id, replyTo, content string, age time.Duration) *gateway.InboundMessage {
	return &gateway.InboundMessage{
		ID:        id,
		Platform:  "rest",
		ChannelID: "c1",
		UserID:    "u1",
		UserName:  "alice",
		Content:   content,
		ReplyToID: replyTo,
		Timestamp: time.Now().Add(-age),
	}
}

func TestBuildWalksReplyChain(t *testing.T) {
	fetcher := &fakeFetcher{messages: map[string]*gateway.InboundMessage{
		"m1": msg("m1", "", "first", 3*time.Minute),
		"m2": msg("m2", "m1", "second", 2*time.Minute),
	}}
	r := NewReconstructor(fetcher, nil, Config{}, zap.NewNop())

	conv, ids, err := r.Build(context.Background(), msg("m3", "m2", "third", time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 3 {
		t.Fatalf("got %d turns, want 3", len(conv))
	}
	// Chronological: oldest first.
	if conv[0].Text != "first" || conv[2].Text != "third" {
		t.Errorf("chain out of order: %q ... %q", conv[0].Text, conv[2].Text)
	}
	if len(ids) != 3 {
		t.Errorf("got %d chain ids, want 3", len(ids))
	}
}

func TestBuildTruncatesChainAtDepth(t *testing.T) {
	fetcher := &fakeFetcher{messages: map[string]*gateway.InboundMessage{}}
	for i := 1; i <= 20; i++ {
		parent := ""
		if i > 1 {
			parent = fmt.Sprintf("m%d", i-1)
		}
		id := fmt.Sprintf("m%d", i)
		fetcher.messages[id] = msg(id, parent, id, time.Duration(21-i)*time.Minute)
	}
	r := NewReconstructor(fetcher, nil, Config{ReplyDepth: 5}, zap.NewNop())

	conv, _, err := r.Build(context.Background(), fetcher.messages["m20"])
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 5 {
		t.Fatalf("got %d turns, want depth cap 5", len(conv))
	}
	if conv.Last().Text != "m20" {
		t.Errorf("newest turn should survive truncation, got %q", conv.Last().Text)
	}
}

func TestBuildBreaksReplyLoop(t *testing.T) {
	fetcher := &fakeFetcher{messages: map[string]*gateway.InboundMessage{
		"m1": msg("m1", "m2", "one", 2*time.Minute),
		"m2": msg("m2", "m1", "two", time.Minute),
	}}
	r := NewReconstructor(fetcher, nil, Config{}, zap.NewNop())

	conv, _, err := r.Build(context.Background(), fetcher.messages["m2"])
	if err != nil {
		t.Fatal(err)
	}
	// m2 -> m1 -> m2 stops at the repeat.
	if len(conv) != 2 {
		t.Fatalf("got %d turns, want 2 (loop broken)", len(conv))
	}
}

func TestBuildStopsChainAtAgeCutoff(t *testing.T) {
	fetcher := &fakeFetcher{messages: map[string]*gateway.InboundMessage{
		"old": msg("old", "", "ancient", 48*time.Hour),
		"mid": msg("mid", "old", "middle", time.Hour),
	}}
	r := NewReconstructor(fetcher, nil, Config{MaxAge: 24 * time.Hour}, zap.NewNop())

	conv, _, err := r.Build(context.Background(), msg("new", "mid", "latest", time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	for _, turn := range conv {
		if turn.Text == "ancient" {
			t.Fatal("turn past the age cutoff was included")
		}
	}
	if len(conv) != 2 {
		t.Errorf("got %d turns, want 2", len(conv))
	}
}

func TestBuildStopsChainOnFetchError(t *testing.T) {
	fetcher := &fakeFetcher{messages: map[string]*gateway.InboundMessage{}}
	r := NewReconstructor(fetcher, nil, Config{}, zap.NewNop())

	conv, ids, err := r.Build(context.Background(), msg("m1", "gone", "hello", time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 1 || conv[0].Text != "hello" {
		t.Fatalf("expected just the triggering turn, got %d turns", len(conv))
	}
	if len(ids) != 1 {
		t.Errorf("got %d ids, want 1", len(ids))
	}
}

func TestBuildWindowPrefersCache(t *testing.T) {
	fetcher := &fakeFetcher{history: []*gateway.InboundMessage{
		msg("h1", "", "from platform", time.Minute),
	}}
	recent := &fakeRecent{turns: []Turn{
		{Speaker: "bob", Text: "from cache", Timestamp: time.Now().Add(-time.Minute)},
	}}
	r := NewReconstructor(fetcher, recent, Config{}, zap.NewNop())

	conv, _, err := r.Build(context.Background(), msg("m1", "", "hi", 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 2 {
		t.Fatalf("got %d turns, want 2", len(conv))
	}
	if conv[0].Text != "from cache" {
		t.Errorf("window should come from the cache, got %q", conv[0].Text)
	}
}

func TestBuildWindowSkipsCachedTrigger(t *testing.T) {
	// Every inbound message is cached before context is built, so the
	// window's newest cached turn is the trigger itself. It must appear
	// in the conversation exactly once.
	recent := &fakeRecent{turns: []Turn{
		{MessageID: "m0", Speaker: "bob", Text: "earlier", Timestamp: time.Now().Add(-time.Minute)},
		{MessageID: "m1", Speaker: "alice", Text: "hi", Timestamp: time.Now()},
	}}
	r := NewReconstructor(&fakeFetcher{}, recent, Config{}, zap.NewNop())

	conv, _, err := r.Build(context.Background(), msg("m1", "", "hi", 0))
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, turn := range conv {
		if turn.Text == "hi" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("trigger message appears %d times in the conversation, want 1", count)
	}
	if len(conv) != 2 || conv[0].Text != "earlier" {
		t.Fatalf("unexpected window: %+v", conv)
	}
}

func TestBuildWindowFallsBackToPlatform(t *testing.T) {
	fetcher := &fakeFetcher{history: []*gateway.InboundMessage{
		msg("h1", "", "from platform", time.Minute),
	}}
	recent := &fakeRecent{err: errors.New("redis down")}
	r := NewReconstructor(fetcher, recent, Config{}, zap.NewNop())

	conv, _, err := r.Build(context.Background(), msg("m1", "", "hi", 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 2 || conv[0].Text != "from platform" {
		t.Fatalf("expected platform fallback, got %+v", conv)
	}
}

func TestBuildWindowSurvivesHistoryError(t *testing.T) {
	fetcher := &fakeFetcher{histErr: errors.New("platform down")}
	r := NewReconstructor(fetcher, nil, Config{}, zap.NewNop())

	conv, _, err := r.Build(context.Background(), msg("m1", "", "hi", 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(conv) != 1 {
		t.Fatalf("expected single-turn conversation, got %d turns", len(conv))
	}
}

func TestBotImageURLCollapses(t *testing.T) {
	m := msg("m1", "", "https://imgen.x.ai/xai-imgen/abc123", time.Minute)
	m.FromBot = true
	turn := toTurn(m)
	if turn.Text != "[generated an image]" {
		t.Errorf("bot image URL should collapse, got %q", turn.Text)
	}

	// Same URL from a human stays verbatim.
	m.FromBot = false
	if toTurn(m).Text == "[generated an image]" {
		t.Error("human message collapsed")
	}
}
