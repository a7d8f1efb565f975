package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/convo"
	"github.com/snarkbot/snark/internal/memory"
	"github.com/snarkbot/snark/internal/provider"
)

// Excerpt is one retrieved past message offered to the model as context.
type Excerpt struct {
	Channel string
	Author  string
	Content string
}

// Prompt carries everything the router folds into the system prompt.
type Prompt struct {
	SpeakerName  string
	SpeakerNotes string
	Referenced   []memory.UserNotes
	Excerpts     []Excerpt
	Ambient      []string // recent lines from other users, chronological
}

// Router turns a conversation into an Intent by asking the decide model
// to either answer or pick a capability tool.
type Router struct {
	models *provider.Router
	system string
	logger *zap.Logger
}

// NewRouter creates an intent router with the given persona prompt.
func NewRouter(models *provider.Router, systemPrompt string, logger *zap.Logger) *Router {
	return &Router{models: models, system: systemPrompt, logger: logger}
}

const maxExcerpts = 5

// Route decides what to do with a conversation. Exactly one Intent comes
// back on success: a capability tool call that validated, or Chat
// carrying the model's own words. Routing failures (no tool call,
// unknown tool, bad parameters) degrade to Chat, never to an error,
// as long as the model produced any text.
func (r *Router) Route(ctx context.Context, conv convo.Conversation, p Prompt) (*Intent, error) {
	req := &provider.ChatRequest{
		Messages: r.Messages(conv, p),
		Tools:    Tools(),
	}

	resp, err := r.models.Chat(ctx, "decide", req)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}

	if len(resp.ToolCalls) == 0 {
		return &Intent{Capability: CapChat, Reply: resp.Content}, nil
	}

	call := resp.ToolCalls[0]
	in, err := r.normalize(call)
	if err != nil {
		r.logger.Warn("Tool call rejected, falling back to chat",
			zap.String("tool", call.Function.Name),
			zap.Error(err))
		if resp.Content != "" {
			return &Intent{Capability: CapChat, Reply: resp.Content}, nil
		}
		// Nothing usable came back; have the model answer plainly.
		req.Tools = nil
		resp, err = r.models.Chat(ctx, "decide", req)
		if err != nil {
			return nil, fmt.Errorf("route fallback: %w", err)
		}
		return &Intent{Capability: CapChat, Reply: resp.Content}, nil
	}
	return in, nil
}

// normalize converts a raw tool call into a validated Intent.
func (r *Router) normalize(call provider.ToolCall) (*Intent, error) {
	capability, ok := toolNames[call.Function.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Function.Name)
	}

	var args struct {
		Query         string   `json:"query"`
		Prompt        string   `json:"prompt"`
		Kind          string   `json:"kind"`
		Topic         string   `json:"topic"`
		Filename      string   `json:"filename"`
		Research      bool     `json:"research"`
		Content       string   `json:"content"`
		Description   string   `json:"description"`
		Question      string   `json:"question"`
		Answers       []string `json:"answers"`
		DurationHours int      `json:"duration_hours"`
		Objective     string   `json:"objective"`
		HoursBack     int      `json:"hours_back"`
		MaxMessages   int      `json:"max_messages"`
	}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("tool %q arguments: %w", call.Function.Name, err)
		}
	}

	in := &Intent{Capability: capability}
	switch capability {
	case CapSearch:
		in.Query = args.Query
	case CapImage:
		in.Prompt = args.Prompt
	case CapDocument:
		in.Document = DocumentParams{
			Kind:     args.Kind,
			Topic:    args.Topic,
			Filename: args.Filename,
			Research: args.Research,
		}
	case CapFile:
		in.File = FileParams{
			Filename:    args.Filename,
			Content:     args.Content,
			Description: args.Description,
		}
	case CapPoll:
		in.Poll = PollParams{
			Question: truncate(args.Question, 300),
			Options:  truncateAll(args.Answers, 55),
			Duration: time.Duration(args.DurationHours) * time.Hour,
		}
	case CapHistory:
		in.History = HistoryParams{
			Objective:   args.Objective,
			HoursBack:   args.HoursBack,
			MaxMessages: args.MaxMessages,
		}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// Messages assembles the system prompt plus the conversation. User turns
// are labeled with the speaker so the model can track who said what.
// Executors that call the model again reuse the same prepared prompt.
func (r *Router) Messages(conv convo.Conversation, p Prompt) []provider.Message {
	msgs := make([]provider.Message, 0, len(conv)+1)
	msgs = append(msgs, provider.Message{Role: "system", Content: r.buildSystem(p)})
	for _, t := range conv {
		if t.FromBot {
			msgs = append(msgs, provider.Message{Role: "assistant", Content: t.Text})
		} else {
			msgs = append(msgs, provider.Message{Role: "user", Content: fmt.Sprintf("[%s] %s", t.Speaker, t.Text)})
		}
	}
	return msgs
}

func (r *Router) buildSystem(p Prompt) string {
	var b strings.Builder
	b.WriteString(r.system)

	if p.SpeakerNotes != "" {
		fmt.Fprintf(&b, "\n\nWhat you know about %s:\n%s", p.SpeakerName, p.SpeakerNotes)
	}

	if len(p.Referenced) > 0 {
		b.WriteString("\n\nOther people mentioned that you know about:")
		for _, ref := range p.Referenced {
			fmt.Fprintf(&b, "\n- %s: %s", ref.Username, strings.ReplaceAll(ref.Notes, "\n", "; "))
		}
	}

	if len(p.Excerpts) > 0 {
		b.WriteString("\n\nRelevant past conversations from this server:")
		for i, e := range p.Excerpts {
			if i >= maxExcerpts {
				break
			}
			fmt.Fprintf(&b, "\n- [%s] %s: %s", e.Channel, e.Author, truncate(e.Content, 200))
		}
	}

	if len(p.Ambient) > 0 {
		b.WriteString("\n\nRecent channel activity (for context, not directed at you):")
		for _, line := range p.Ambient {
			b.WriteString("\n- ")
			b.WriteString(truncate(line, 100))
		}
	}
	return b.String()
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

func truncateAll(ss []string, n int) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = truncate(s, n)
	}
	return out
}
