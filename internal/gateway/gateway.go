package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Gateway manages all platform adapters and fans inbound messages
// into a single handler.
type Gateway struct {
	adapters map[string]Adapter
	handler  MessageHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetHandler sets the callback for all inbound messages.
func (g *Gateway) SetHandler(h MessageHandler) {
	g.handler = h
}

// Register adds an adapter and wires its message handler.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	adapter.OnMessage(func(msg *InboundMessage) {
		if g.handler != nil {
			g.handler(msg)
		}
	})
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// ConnectAll starts all registered adapters.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return nil
}

// Adapter returns the adapter for a platform.
func (g *Gateway) Adapter(platform string) (Adapter, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("no adapter for platform: %s", platform)
	}
	return a, nil
}

// Send sends a message through the platform named in msg.
func (g *Gateway) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	a, err := g.Adapter(msg.Platform)
	if err != nil {
		return "", err
	}
	return a.Send(ctx, msg)
}

// SendFile uploads a file to a platform channel.
func (g *Gateway) SendFile(ctx context.Context, platform, channelID string, file *FileUpload) error {
	a, err := g.Adapter(platform)
	if err != nil {
		return err
	}
	return a.SendFile(ctx, channelID, file)
}

// CreatePoll emits a poll on a platform channel.
func (g *Gateway) CreatePoll(ctx context.Context, platform, channelID string, poll *PollSpec) error {
	a, err := g.Adapter(platform)
	if err != nil {
		return err
	}
	return a.CreatePoll(ctx, channelID, poll)
}

// Pin pins a message on a platform channel.
func (g *Gateway) Pin(ctx context.Context, platform, channelID, messageID string) error {
	a, err := g.Adapter(platform)
	if err != nil {
		return err
	}
	return a.Pin(ctx, channelID, messageID)
}

// FetchMessage retrieves a single message.
func (g *Gateway) FetchMessage(ctx context.Context, platform, channelID, messageID string) (*InboundMessage, error) {
	a, err := g.Adapter(platform)
	if err != nil {
		return nil, err
	}
	return a.FetchMessage(ctx, channelID, messageID)
}

// FetchHistory retrieves channel history through the platform adapter.
func (g *Gateway) FetchHistory(ctx context.Context, platform, channelID string, limit int, after time.Time) ([]*InboundMessage, error) {
	a, err := g.Adapter(platform)
	if err != nil {
		return nil, err
	}
	return a.FetchHistory(ctx, channelID, limit, after)
}

// Typing signals activity on a platform channel. Best-effort.
func (g *Gateway) Typing(ctx context.Context, platform, channelID string) {
	a, err := g.Adapter(platform)
	if err != nil {
		return
	}
	a.Typing(ctx, channelID)
}

// BotUserID returns the bot's own user id on a platform.
func (g *Gateway) BotUserID(platform string) string {
	a, err := g.Adapter(platform)
	if err != nil {
		return ""
	}
	return a.BotUserID()
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the list of registered platform names.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	return names
}

// Statuses reports connection state for all adapters that expose it.
func (g *Gateway) Statuses() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []AdapterStatus
	for _, a := range g.adapters {
		if sp, ok := a.(interface{ Status() AdapterStatus }); ok {
			out = append(out, sp.Status())
		}
	}
	return out
}
