package convo

import (
	"context"
	"strings"
	"time"

	"github.com/snarkbot/snark/internal/gateway"
	"go.uber.org/zap"
)

// Fetcher is the slice of the platform gateway the reconstructor needs.
type Fetcher interface {
	FetchMessage(ctx context.Context, platform, channelID, messageID string) (*gateway.InboundMessage, error)
	FetchHistory(ctx context.Context, platform, channelID string, limit int, after time.Time) ([]*gateway.InboundMessage, error)
}

// RecentSource supplies cached recent turns for a channel. Implemented by
// the memory package's context cache.
type RecentSource interface {
	Recent(ctx context.Context, channelID string, maxTurns int) ([]Turn, error)
}

// Config bounds reconstruction.
type Config struct {
	ReplyDepth    int           // max turns walked up a reply chain
	ChannelWindow int           // turns pulled in window mode
	MaxAge        time.Duration // hard age cap on any included turn
}

// Reconstructor builds a Conversation for an inbound message.
type Reconstructor struct {
	fetcher Fetcher
	recent  RecentSource
	cfg     Config
	logger  *zap.Logger
}

// NewReconstructor creates a Reconstructor. recent may be nil, in which case
// window mode always goes to the platform.
func NewReconstructor(fetcher Fetcher, recent RecentSource, cfg Config, logger *zap.Logger) *Reconstructor {
	if cfg.ReplyDepth <= 0 {
		cfg.ReplyDepth = 10
	}
	if cfg.ChannelWindow <= 0 {
		cfg.ChannelWindow = 10
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 720 * time.Hour
	}
	return &Reconstructor{fetcher: fetcher, recent: recent, cfg: cfg, logger: logger}
}

// Build assembles the conversation context for msg. Reply-chain mode takes
// precedence whenever a reply relationship exists; otherwise the channel
// window is used. The returned ids are the message ids included in a reply
// chain, so retrieval can exclude them.
func (r *Reconstructor) Build(ctx context.Context, msg *gateway.InboundMessage) (Conversation, []string, error) {
	if msg.ReplyToID != "" {
		return r.walkReplyChain(ctx, msg)
	}
	conv := r.channelWindow(ctx, msg)
	conv = append(conv, toTurn(msg))
	return conv, []string{msg.ID}, nil
}

// walkReplyChain iterates up the reply-parent pointers. Loops and chains
// beyond the depth or age cap are truncated, not rejected.
func (r *Reconstructor) walkReplyChain(ctx context.Context, msg *gateway.InboundMessage) (Conversation, []string, error) {
	cutoff := time.Now().Add(-r.cfg.MaxAge)
	seen := make(map[string]bool)

	var chain Conversation
	var ids []string

	current := msg
	for depth := 0; current != nil && depth < r.cfg.ReplyDepth; depth++ {
		if seen[current.ID] {
			break
		}
		seen[current.ID] = true

		if !current.Timestamp.IsZero() && current.Timestamp.Before(cutoff) {
			break
		}

		ids = append(ids, current.ID)
		if current.Content != "" {
			chain = append(chain, toTurn(current))
		}

		if current.ReplyToID == "" {
			break
		}
		parent, err := r.fetcher.FetchMessage(ctx, current.Platform, current.ChannelID, current.ReplyToID)
		if err != nil {
			r.logger.Debug("reply chain walk stopped",
				zap.String("message", current.ReplyToID), zap.Error(err))
			break
		}
		current = parent
	}

	// Walked newest-to-oldest; reverse to chronological.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, ids, nil
}

// channelWindow pulls recent channel turns, preferring the cache and falling
// back to platform history.
func (r *Reconstructor) channelWindow(ctx context.Context, msg *gateway.InboundMessage) Conversation {
	cutoff := time.Now().Add(-r.cfg.MaxAge)

	if r.recent != nil {
		turns, err := r.recent.Recent(ctx, msg.ChannelID, r.cfg.ChannelWindow)
		if err != nil {
			r.logger.Warn("context cache unavailable, falling back to platform history",
				zap.String("channel", msg.ChannelID), zap.Error(err))
		} else if len(turns) > 0 {
			// The dispatcher caches every inbound message before context
			// is built, so the trigger is already the newest cached turn.
			return clampAge(turns, cutoff, msg.ID)
		}
	}

	history, err := r.fetcher.FetchHistory(ctx, msg.Platform, msg.ChannelID, r.cfg.ChannelWindow, cutoff)
	if err != nil {
		r.logger.Warn("channel history unavailable, starting fresh",
			zap.String("channel", msg.ChannelID), zap.Error(err))
		return nil
	}

	var conv Conversation
	for _, m := range history {
		if m.ID == msg.ID || m.Content == "" {
			continue
		}
		conv = append(conv, toTurn(m))
	}
	return conv
}

func clampAge(turns []Turn, cutoff time.Time, excludeID string) Conversation {
	var out Conversation
	for _, t := range turns {
		if !t.Timestamp.IsZero() && t.Timestamp.Before(cutoff) {
			continue
		}
		if excludeID != "" && t.MessageID == excludeID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// toTurn converts a platform message into a conversation turn. Bot turns
// that are bare generated-image URLs collapse to a placeholder, since the
// URLs expire.
func toTurn(m *gateway.InboundMessage) Turn {
	text := m.Content
	if m.FromBot && isImageURL(text) {
		text = "[generated an image]"
	}
	return Turn{
		MessageID: m.ID,
		Speaker:   m.UserName,
		UserID:    m.UserID,
		Text:      text,
		FromBot:   m.FromBot,
		Timestamp: m.Timestamp,
	}
}

func isImageURL(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "https://imgen.x.ai/") ||
		strings.HasPrefix(text, "https://api.x.ai/v1/images/")
}
