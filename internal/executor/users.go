package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/provider"
)

// Roster answers questions about the whole server: rankings, comparisons,
// "who here does X". It folds everything on file about every known user
// into the prompt and has the model answer from that.
type Roster struct {
	deps Deps
}

func (e *Roster) Capability() intent.Capability { return intent.CapUsers }

func (e *Roster) Execute(ctx context.Context, req *Request) (*Result, error) {
	notes := e.deps.Memory.AllNotes(ctx, req.Msg.UserID)
	if len(notes) == 0 {
		text := "I don't have notes on anyone else here yet. Give it time."
		if err := reply(ctx, e.deps.Gateway, req.Msg, text); err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil
	}

	var b strings.Builder
	b.WriteString("Everything on file about the people in this server:\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "\n%s:\n%s\n", n.Username, n.Notes)
	}
	b.WriteString("\nAnswer the last message using these notes. Only mention people the notes actually support.")

	msgs := make([]provider.Message, 0, len(req.Messages)+1)
	msgs = append(msgs, req.Messages...)
	msgs = append(msgs, provider.Message{Role: "user", Content: b.String()})

	resp, err := e.deps.Models.Chat(ctx, "decide", &provider.ChatRequest{Messages: msgs})
	if err != nil {
		return nil, fmt.Errorf("roster answer: %w", err)
	}
	text := resp.Content
	if text == "" {
		text = "I know these people but apparently have nothing to say about them."
	}
	if err := reply(ctx, e.deps.Gateway, req.Msg, text); err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}
