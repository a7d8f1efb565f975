package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// discordEpoch is the Discord snowflake epoch in unix milliseconds.
const discordEpoch = 1420070400000

// DiscordAdapter implements Adapter for Discord using the bot gateway.
type DiscordAdapter struct {
	token   string
	session *discordgo.Session
	handler MessageHandler

	// messages overrides the history page fetch; nil means the live session.
	messages func(channelID string, limit int, beforeID, afterID string) ([]*discordgo.Message, error)

	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewDiscordAdapter creates a Discord adapter.
func NewDiscordAdapter(token string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{token: token, logger: logger}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *DiscordAdapter) BotUserID() string {
	if a.session == nil || a.session.State == nil || a.session.State.User == nil {
		return ""
	}
	return a.session.State.User.ID
}

// Connect opens the Discord gateway websocket.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.setError(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	a.session = session

	a.session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	a.session.AddHandler(a.onMessageCreate)

	if err := a.session.Open(); err != nil {
		a.setError(fmt.Sprintf("open failed: %v", err))
		return fmt.Errorf("discord open: %w", err)
	}

	now := time.Now()
	a.mu.Lock()
	a.connected = true
	a.connectedAt = now
	a.lastError = ""
	a.mu.Unlock()

	guildCount := len(a.session.State.Guilds)
	if guildCount == 0 {
		a.logger.Warn("discord bot not added to any server — invite it first")
	}
	a.logger.Info("discord adapter connected",
		zap.String("user", a.session.State.User.Username),
		zap.Int("guilds", guildCount))
	return nil
}

func (a *DiscordAdapter) setError(msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.connected = false
	a.mu.Unlock()
}

// onMessageCreate normalizes incoming Discord messages.
func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if a.handler == nil {
		return
	}
	a.handler(a.normalize(m.Message))
}

// normalize converts a discordgo message into the platform-neutral form.
func (a *DiscordAdapter) normalize(m *discordgo.Message) *InboundMessage {
	msg := &InboundMessage{
		ID:          m.ID,
		Platform:    "discord",
		ChannelID:   m.ChannelID,
		ChannelName: a.channelName(m.ChannelID),
		Content:     stripMentions(m.Content),
		Timestamp:   m.Timestamp,
	}
	if m.Author != nil {
		msg.UserID = m.Author.ID
		msg.UserName = m.Author.Username
		msg.FromBot = m.Author.Bot || m.Author.ID == a.BotUserID()
		if m.Member != nil && m.Member.Nick != "" {
			msg.UserName = m.Member.Nick
		}
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	botID := a.BotUserID()
	for _, u := range m.Mentions {
		if u.ID == botID {
			msg.BotMention = true
			continue
		}
		msg.Mentions = append(msg.Mentions, u.ID)
	}
	return msg
}

// channelName resolves a channel's name from session state, falling back to
// a REST lookup. DMs have no name and return "".
func (a *DiscordAdapter) channelName(channelID string) string {
	if ch, err := a.session.State.Channel(channelID); err == nil {
		return ch.Name
	}
	ch, err := a.session.Channel(channelID)
	if err != nil {
		return ""
	}
	return ch.Name
}

// stripMentions removes <@id> and <@!id> mention tokens.
func stripMentions(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "<@")
		if start < 0 {
			b.WriteString(content)
			break
		}
		end := strings.Index(content[start:], ">")
		if end < 0 {
			b.WriteString(content)
			break
		}
		b.WriteString(content[:start])
		content = content[start+end+1:]
	}
	return strings.TrimSpace(b.String())
}

// Send posts a message, optionally as a reply.
func (a *DiscordAdapter) Send(_ context.Context, msg *OutboundMessage) (string, error) {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: msg.ReplyTo,
			ChannelID: msg.ChannelID,
		}
	}
	sent, err := a.session.ChannelMessageSendComplex(msg.ChannelID, send)
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return sent.ID, nil
}

// SendFile uploads a binary attachment.
func (a *DiscordAdapter) SendFile(_ context.Context, channelID string, file *FileUpload) error {
	send := &discordgo.MessageSend{
		Content: file.Caption,
		Files: []*discordgo.File{
			{Name: file.Name, Reader: strings.NewReader(string(file.Data))},
		},
	}
	if _, err := a.session.ChannelMessageSendComplex(channelID, send); err != nil {
		return fmt.Errorf("discord file send: %w", err)
	}
	return nil
}

// CreatePoll posts a native Discord poll.
func (a *DiscordAdapter) CreatePoll(_ context.Context, channelID string, poll *PollSpec) error {
	answers := make([]discordgo.PollAnswer, 0, len(poll.Options))
	for _, opt := range poll.Options {
		answers = append(answers, discordgo.PollAnswer{
			Media: &discordgo.PollMedia{Text: opt},
		})
	}
	hours := int(poll.Duration.Hours())
	if hours < 1 {
		hours = 1
	}
	send := &discordgo.MessageSend{
		Poll: &discordgo.Poll{
			Question: discordgo.PollMedia{Text: poll.Question},
			Answers:  answers,
			Duration: hours,
		},
	}
	if _, err := a.session.ChannelMessageSendComplex(channelID, send); err != nil {
		return fmt.Errorf("discord poll: %w", err)
	}
	return nil
}

// Pin pins a message. Pinning an already-pinned message succeeds as a no-op.
func (a *DiscordAdapter) Pin(_ context.Context, channelID, messageID string) error {
	pinned, err := a.session.ChannelMessagesPinned(channelID)
	if err == nil {
		for _, m := range pinned {
			if m.ID == messageID {
				return nil
			}
		}
	}
	if err := a.session.ChannelMessagePin(channelID, messageID); err != nil {
		return fmt.Errorf("discord pin: %w", err)
	}
	return nil
}

// FetchMessage retrieves one message by id.
func (a *DiscordAdapter) FetchMessage(_ context.Context, channelID, messageID string) (*InboundMessage, error) {
	m, err := a.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, fmt.Errorf("discord fetch message %s: %w", messageID, err)
	}
	return a.normalize(m), nil
}

// discordPageSize is the hard per-request ceiling of the messages endpoint.
const discordPageSize = 100

// FetchHistory returns up to limit messages posted after the given time,
// oldest first. Discord is queried with a snowflake synthesized from the
// timestamp; limits past one page are fetched by advancing the after
// cursor.
func (a *DiscordAdapter) FetchHistory(_ context.Context, channelID string, limit int, after time.Time) ([]*InboundMessage, error) {
	if limit <= 0 {
		limit = discordPageSize
	}
	fetch := a.messages
	if fetch == nil {
		fetch = func(channelID string, limit int, beforeID, afterID string) ([]*discordgo.Message, error) {
			return a.session.ChannelMessages(channelID, limit, beforeID, afterID, "")
		}
	}

	afterID := snowflakeFromTime(after)
	if afterID == "" {
		// No cursor: one page, newest first; reverse to chronological.
		if limit > discordPageSize {
			limit = discordPageSize
		}
		msgs, err := fetch(channelID, limit, "", "")
		if err != nil {
			return nil, fmt.Errorf("discord history: %w", err)
		}
		out := make([]*InboundMessage, 0, len(msgs))
		for i := len(msgs) - 1; i >= 0; i-- {
			out = append(out, a.normalize(msgs[i]))
		}
		return out, nil
	}

	// With an after cursor Discord returns oldest first; page forward.
	var out []*InboundMessage
	for len(out) < limit {
		page := limit - len(out)
		if page > discordPageSize {
			page = discordPageSize
		}
		msgs, err := fetch(channelID, page, "", afterID)
		if err != nil {
			return nil, fmt.Errorf("discord history: %w", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			out = append(out, a.normalize(m))
		}
		afterID = msgs[len(msgs)-1].ID
		if len(msgs) < page {
			break
		}
	}
	return out, nil
}

// snowflakeFromTime builds a Discord snowflake whose timestamp field encodes t.
func snowflakeFromTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d", ms<<22)
}

// Typing shows the typing indicator in a channel.
func (a *DiscordAdapter) Typing(_ context.Context, channelID string) {
	if err := a.session.ChannelTyping(channelID); err != nil {
		a.logger.Debug("discord typing failed", zap.Error(err))
	}
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *DiscordAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "discord",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		guildCount := 0
		if a.session != nil && a.session.State != nil {
			guildCount = len(a.session.State.Guilds)
		}
		s.Details = fmt.Sprintf("bot=%s, guilds=%d",
			a.session.State.User.Username, guildCount)
	}
	return s
}
