package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Route binds a purpose to a provider and model.
type Route struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Router manages multiple LLM providers and routes requests by purpose.
// Purposes name what the call is for — "decide" (intent + reply), "notes"
// (cheap fact extraction), "search", "image" — so each can ride a different
// provider and model.
type Router struct {
	providers map[string]Provider
	routes    map[string]Route
	fallbacks map[string][]Route
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		routes:    make(map[string]Route),
		fallbacks: make(map[string][]Route),
		logger:    logger,
	}
}

// Register adds a provider to the router.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	r.logger.Info("registered provider",
		zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetRoute binds a purpose to a provider and model.
func (r *Router) SetRoute(purpose string, route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[purpose] = route
}

// SetFallbacks configures fallback routes for a purpose.
func (r *Router) SetFallbacks(purpose string, routes []Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[purpose] = routes
}

// resolve returns the route chain for a purpose: primary then fallbacks.
func (r *Router) resolve(purpose string) ([]Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	primary, ok := r.routes[purpose]
	if !ok {
		return nil, fmt.Errorf("no route for purpose %q", purpose)
	}
	chain := append([]Route{primary}, r.fallbacks[purpose]...)
	return chain, nil
}

func (r *Router) provider(id string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[id]
}

// Chat sends a chat request through the purpose's route chain.
func (r *Router) Chat(ctx context.Context, purpose string, req *ChatRequest) (*ChatResponse, error) {
	chain, err := r.resolve(purpose)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, route := range chain {
		p := r.provider(route.Provider)
		if p == nil {
			lastErr = fmt.Errorf("provider %q not registered", route.Provider)
			continue
		}
		req.Model = route.Model
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i < len(chain)-1 {
			r.logger.Warn("provider failed, trying fallback",
				zap.String("purpose", purpose),
				zap.String("provider", route.Provider),
				zap.Error(err))
		}
	}
	return nil, fmt.Errorf("all providers failed for %q: %w", purpose, lastErr)
}

// Search runs a live-search completion through the purpose's route chain.
func (r *Router) Search(ctx context.Context, purpose string, req *SearchRequest) (string, error) {
	chain, err := r.resolve(purpose)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, route := range chain {
		p := r.provider(route.Provider)
		if p == nil {
			lastErr = fmt.Errorf("provider %q not registered", route.Provider)
			continue
		}
		req.Model = route.Model
		text, err := p.Search(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, ErrUnsupported) {
			continue
		}
	}
	return "", fmt.Errorf("search failed for %q: %w", purpose, lastErr)
}

// GenerateImage produces an image URL through the purpose's route chain.
func (r *Router) GenerateImage(ctx context.Context, purpose, prompt string) (string, error) {
	chain, err := r.resolve(purpose)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, route := range chain {
		p := r.provider(route.Provider)
		if p == nil {
			lastErr = fmt.Errorf("provider %q not registered", route.Provider)
			continue
		}
		url, err := p.GenerateImage(ctx, route.Model, prompt)
		if err == nil {
			return url, nil
		}
		lastErr = err
		if errors.Is(err, ErrUnsupported) {
			continue
		}
	}
	return "", fmt.Errorf("image generation failed for %q: %w", purpose, lastErr)
}

// Providers returns the registered provider ids.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}
