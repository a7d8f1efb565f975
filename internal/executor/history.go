package executor

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/provider"
)

// HistorySearch digs through channel history for an objective: the raw
// window from the platform, merged with semantically retrieved past
// messages, summarized by the model.
type HistorySearch struct {
	deps Deps
}

func (e *HistorySearch) Capability() intent.Capability { return intent.CapHistory }

func (e *HistorySearch) Execute(ctx context.Context, req *Request) (*Result, error) {
	p := req.Intent.History
	after := time.Now().Add(-time.Duration(p.HoursBack) * time.Hour)

	msgs, err := e.deps.Gateway.FetchHistory(ctx, req.Msg.Platform, req.Msg.ChannelID, p.MaxMessages, after)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	var lines []string
	for _, m := range msgs {
		if m.FromBot || m.Content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			m.Timestamp.Format("2006-01-02 15:04"), m.UserName, truncate(m.Content, 150)))
	}

	if len(lines) == 0 {
		text := fmt.Sprintf("No messages found in the last %d hours.", p.HoursBack)
		if err := reply(ctx, e.deps.Gateway, req.Msg, text); err != nil {
			return nil, err
		}
		return &Result{Text: text}, nil
	}

	var excerpts []intent.Excerpt
	if e.deps.Index != nil {
		excerpts, err = e.deps.Index.Retrieve(ctx, p.Objective, req.ExcludeIDs, 5)
		if err != nil {
			e.deps.Logger.Warn("Retrieval failed during history search", zap.Error(err))
		}
	}

	text, err := e.summarize(ctx, p, lines, excerpts)
	if err != nil {
		e.deps.Logger.Warn("History summarization failed", zap.Error(err))
		text = "Found the messages but choked on summarizing them. Try narrowing the search."
	}
	if err := reply(ctx, e.deps.Gateway, req.Msg, text); err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}

func (e *HistorySearch) summarize(ctx context.Context, p intent.HistoryParams, lines []string, excerpts []intent.Excerpt) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Search objective: %s\n%d messages from the last %dh:\n\n%s",
		p.Objective, len(lines), p.HoursBack, strings.Join(lines, "\n"))
	if len(excerpts) > 0 {
		b.WriteString("\n\nOlder related messages:")
		for _, ex := range excerpts {
			fmt.Fprintf(&b, "\n- [%s] %s: %s", ex.Channel, ex.Author, truncate(ex.Content, 150))
		}
	}
	b.WriteString("\n\nAnswer the search objective from these messages, quoting the relevant ones.")

	resp, err := e.deps.Models.Chat(ctx, "decide", &provider.ChatRequest{
		Messages: []provider.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
