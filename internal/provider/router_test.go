package provider

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type stubProvider struct {
	id       string
	chatErr  error
	imageErr error
	content  string
	calls    int
}

func (s *stubProvider) ID() string   { return s.id }
func (s *stubProvider) Name() string { return s.id }

func (s *stubProvider) Chat(context.Context, *ChatRequest) (*ChatResponse, error) {
	s.calls++
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return &ChatResponse{Content: s.content}, nil
}

func (s *stubProvider) Search(context.Context, *SearchRequest) (string, error) {
	s.calls++
	return s.content, s.chatErr
}

func (s *stubProvider) GenerateImage(context.Context, string, string) (string, error) {
	s.calls++
	if s.imageErr != nil {
		return "", s.imageErr
	}
	return s.content, nil
}

func (s *stubProvider) HealthCheck(context.Context) error { return nil }

func TestRouterNoRoute(t *testing.T) {
	r := NewRouter(zap.NewNop())
	if _, err := r.Chat(context.Background(), "decide", &ChatRequest{}); err == nil {
		t.Fatal("expected error for unbound purpose")
	}
}

func TestRouterFallsBackOnError(t *testing.T) {
	primary := &stubProvider{id: "primary", chatErr: errors.New("down")}
	backup := &stubProvider{id: "backup", content: "from backup"}

	r := NewRouter(zap.NewNop())
	r.Register(primary)
	r.Register(backup)
	r.SetRoute("decide", Route{Provider: "primary", Model: "m1"})
	r.SetFallbacks("decide", []Route{{Provider: "backup", Model: "m2"}})

	resp, err := r.Chat(context.Background(), "decide", &ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "from backup" {
		t.Errorf("content = %q", resp.Content)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, backup.calls)
	}
}

func TestRouterAllProvidersFailed(t *testing.T) {
	p := &stubProvider{id: "only", chatErr: errors.New("down")}
	r := NewRouter(zap.NewNop())
	r.Register(p)
	r.SetRoute("decide", Route{Provider: "only", Model: "m"})

	if _, err := r.Chat(context.Background(), "decide", &ChatRequest{}); err == nil {
		t.Fatal("expected error when the whole chain fails")
	}
}

func TestRouterImageSkipsUnsupported(t *testing.T) {
	textOnly := &stubProvider{id: "text-only", imageErr: ErrUnsupported}
	imager := &stubProvider{id: "imager", content: "https://imgen.x.ai/img.png"}

	r := NewRouter(zap.NewNop())
	r.Register(textOnly)
	r.Register(imager)
	r.SetRoute("image", Route{Provider: "text-only", Model: "m1"})
	r.SetFallbacks("image", []Route{{Provider: "imager", Model: "m2"}})

	url, err := r.GenerateImage(context.Background(), "image", "a lighthouse")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://imgen.x.ai/img.png" {
		t.Errorf("url = %q", url)
	}
}

func TestRouterUnregisteredProviderInChain(t *testing.T) {
	backup := &stubProvider{id: "backup", content: "ok"}
	r := NewRouter(zap.NewNop())
	r.Register(backup)
	r.SetRoute("decide", Route{Provider: "ghost", Model: "m1"})
	r.SetFallbacks("decide", []Route{{Provider: "backup", Model: "m2"}})

	resp, err := r.Chat(context.Background(), "decide", &ChatRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
}
