package intent

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/convo"
	"github.com/snarkbot/snark/internal/memory"
	"github.com/snarkbot/snark/internal/provider"
)

// scriptedProvider returns canned chat responses in order.
type scriptedProvider struct {
	responses []*provider.ChatResponse
	calls     int
	lastReq   *provider.ChatRequest
}

func (s *scriptedProvider) ID() string   { return "scripted" }
func (s *scriptedProvider) Name() string { return "Scripted" }

func (s *scriptedProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	s.lastReq = req
	resp := s.responses[s.calls%len(s.responses)]
	s.calls++
	return resp, nil
}

func (s *scriptedProvider) Search(context.Context, *provider.SearchRequest) (string, error) {
	return "", provider.ErrUnsupported
}

func (s *scriptedProvider) GenerateImage(context.Context, string, string) (string, error) {
	return "", provider.ErrUnsupported
}

func (s *scriptedProvider) HealthCheck(context.Context) error { return nil }

func newTestRouter(t *testing.T, p provider.Provider) *Router {
	t.Helper()
	models := provider.NewRouter(zap.NewNop())
	models.Register(p)
	models.SetRoute("decide", provider.Route{Provider: "scripted", Model: "test-model"})
	return NewRouter(models, "You are snark.", zap.NewNop())
}

func toolCall(name, args string) *provider.ChatResponse {
	return &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{
			ID:   "call-1",
			Type: "function",
			Function: provider.ToolCallFunction{
				Name:      name,
				Arguments: args,
			},
		}},
	}
}

func TestRoutePlainTextBecomesChat(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "obviously the answer is 42"},
	}}
	r := newTestRouter(t, p)

	in, err := r.Route(context.Background(), convo.Conversation{
		{Speaker: "alice", Text: "what's the answer?"},
	}, Prompt{SpeakerName: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if in.Capability != CapChat {
		t.Fatalf("capability = %q, want chat", in.Capability)
	}
	if in.Reply != "obviously the answer is 42" {
		t.Errorf("reply = %q", in.Reply)
	}
	if len(p.lastReq.Tools) == 0 {
		t.Error("expected capability tools to be offered")
	}
}

func TestRouteToolCallNormalizes(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCall("create_poll", `{"question":"tabs or spaces?","answers":["tabs","spaces"],"duration_hours":48}`),
	}}
	r := newTestRouter(t, p)

	in, err := r.Route(context.Background(), nil, Prompt{})
	if err != nil {
		t.Fatal(err)
	}
	if in.Capability != CapPoll {
		t.Fatalf("capability = %q, want poll", in.Capability)
	}
	if in.Poll.Question != "tabs or spaces?" || len(in.Poll.Options) != 2 {
		t.Errorf("poll params not carried: %+v", in.Poll)
	}
	if in.Poll.Duration.Hours() != 48 {
		t.Errorf("duration = %v, want 48h", in.Poll.Duration)
	}
}

func TestRouteRejectedToolFallsBackToContent(t *testing.T) {
	// Empty query fails validation; the model's own text should win.
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		func() *provider.ChatResponse {
			resp := toolCall("web_search", `{"query":""}`)
			resp.Content = "couldn't figure out what to search for"
			return resp
		}(),
	}}
	r := newTestRouter(t, p)

	in, err := r.Route(context.Background(), nil, Prompt{})
	if err != nil {
		t.Fatal(err)
	}
	if in.Capability != CapChat {
		t.Fatalf("capability = %q, want chat fallback", in.Capability)
	}
	if in.Reply != "couldn't figure out what to search for" {
		t.Errorf("reply = %q", in.Reply)
	}
	if p.calls != 1 {
		t.Errorf("expected no second round trip, got %d calls", p.calls)
	}
}

func TestRouteUnknownToolReasksWithoutTools(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCall("summon_demon", `{}`),
		{Content: "fine, I'll just talk"},
	}}
	r := newTestRouter(t, p)

	in, err := r.Route(context.Background(), nil, Prompt{})
	if err != nil {
		t.Fatal(err)
	}
	if in.Capability != CapChat || in.Reply != "fine, I'll just talk" {
		t.Fatalf("got %+v, want toolless retry result", in)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls, got %d", p.calls)
	}
	if len(p.lastReq.Tools) != 0 {
		t.Error("retry should not offer tools")
	}
}

func TestRouteAllUsersToolCall(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCall("get_all_users", `{}`),
	}}
	r := newTestRouter(t, p)

	in, err := r.Route(context.Background(), nil, Prompt{})
	if err != nil {
		t.Fatal(err)
	}
	if in.Capability != CapUsers {
		t.Fatalf("capability = %q, want users", in.Capability)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 4) // 2 bytes per rune
	got := truncate(s, 5)
	if got != strings.Repeat("é", 2) {
		t.Errorf("truncate split a rune: %q", got)
	}
	if truncate("plain", 10) != "plain" {
		t.Error("short strings must pass through untouched")
	}
}

func TestMessagesLabelsSpeakers(t *testing.T) {
	r := newTestRouter(t, &scriptedProvider{responses: []*provider.ChatResponse{{}}})

	msgs := r.Messages(convo.Conversation{
		{Speaker: "alice", Text: "hello"},
		{Speaker: "snark", Text: "yes?", FromBot: true},
	}, Prompt{
		SpeakerName:  "alice",
		SpeakerNotes: "job: writes compilers",
		Referenced: []memory.UserNotes{
			{Username: "bob", Notes: "likes: trains"},
		},
		Excerpts: []Excerpt{{Channel: "random", Author: "carol", Content: "trains are great"}},
		Ambient:  []string{"dave: anyone up for lunch"},
	})

	if msgs[0].Role != "system" {
		t.Fatal("first message must be system")
	}
	sys := msgs[0].Content
	for _, want := range []string{
		"What you know about alice",
		"job: writes compilers",
		"bob: likes: trains",
		"[random] carol: trains are great",
		"dave: anyone up for lunch",
	} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	if msgs[1].Role != "user" || msgs[1].Content != "[alice] hello" {
		t.Errorf("user turn = %q %q", msgs[1].Role, msgs[1].Content)
	}
	if msgs[2].Role != "assistant" || msgs[2].Content != "yes?" {
		t.Errorf("assistant turn = %q %q", msgs[2].Role, msgs[2].Content)
	}
}
