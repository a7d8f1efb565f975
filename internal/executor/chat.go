package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/provider"
)

// Chat delivers the reply the router already composed, then updates
// what the bot knows about the speaker. The memory write finishes
// before the dispatch does, so a follow-up message sees it.
type Chat struct {
	deps Deps
}

func (e *Chat) Capability() intent.Capability { return intent.CapChat }

func (e *Chat) Execute(ctx context.Context, req *Request) (*Result, error) {
	text := req.Intent.Reply
	if text == "" {
		text = "You pinged me for... nothing? Impressive."
	}
	if err := reply(ctx, e.deps.Gateway, req.Msg, text); err != nil {
		return nil, err
	}

	if err := e.updateFacts(ctx, req); err != nil {
		// The reply already landed; a missed memory write costs
		// personalization, not the exchange.
		e.deps.Logger.Warn("Fact extraction failed",
			zap.String("user", req.Msg.UserID), zap.Error(err))
	}
	return &Result{Text: text}, nil
}

// updateFacts asks the cheap notes model for durable key/value facts
// from the user's message and upserts them.
func (e *Chat) updateFacts(ctx context.Context, req *Request) error {
	current := e.deps.Memory.Notes(ctx, req.Msg.UserID)
	if current == "" {
		current = "No prior notes."
	}

	prompt := fmt.Sprintf(`Update your notes about %s based on this message.

Current notes:
%s

Their message: %s

Return a JSON array of durable facts worth remembering, each {"key": "...", "value": "..."} where key is a short stable label (e.g. "job", "likes", "hometown"). Reuse existing keys when updating a fact. Return [] if nothing new.`,
		req.Msg.UserName, current, req.Conversation.Last().Text)

	resp, err := e.deps.Models.Chat(ctx, "notes", &provider.ChatRequest{
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return err
	}

	facts, err := parseFacts(resp.Content)
	if err != nil {
		return err
	}
	for _, f := range facts {
		if f.Key == "" || f.Value == "" {
			continue
		}
		if err := e.deps.Memory.Remember(ctx, req.Msg.UserID, req.Msg.UserName, f.Key, f.Value); err != nil {
			return err
		}
	}
	return nil
}

type extractedFact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// parseFacts tolerates the model wrapping its JSON in a code fence.
func parseFacts(content string) ([]extractedFact, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "["); i >= 0 {
		if j := strings.LastIndex(content, "]"); j > i {
			content = content[i : j+1]
		}
	}
	var facts []extractedFact
	if err := json.Unmarshal([]byte(content), &facts); err != nil {
		return nil, fmt.Errorf("parse facts: %w", err)
	}
	return facts, nil
}
