package gateway

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// SlackAdapter implements Adapter for Slack using Socket Mode. Reply chains
// map onto Slack threads: a turn's ReplyToID is its thread parent timestamp.
// Slack has no native poll primitive, so CreatePoll posts a formatted ballot.
type SlackAdapter struct {
	botToken string
	appToken string
	client   *slack.Client
	socket   *socketmode.Client
	handler  MessageHandler

	botUserID    string
	channelNames map[string]string // channelID -> name
	userNames    map[string]string // userID -> display name

	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack adapter.
// botToken is the Bot User OAuth Token (xoxb-...).
// appToken is the App-Level Token (xapp-...) for Socket Mode.
func NewSlackAdapter(botToken, appToken string, logger *zap.Logger) *SlackAdapter {
	client := slack.New(botToken,
		slack.OptionAppLevelToken(appToken),
	)
	socket := socketmode.New(client,
		socketmode.OptionLog(zap.NewStdLog(logger)),
	)
	return &SlackAdapter{
		botToken:     botToken,
		appToken:     appToken,
		client:       client,
		socket:       socket,
		channelNames: make(map[string]string),
		userNames:    make(map[string]string),
		logger:       logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

func (a *SlackAdapter) OnMessage(h MessageHandler) { a.handler = h }

func (a *SlackAdapter) BotUserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.botUserID
}

// Connect resolves the bot identity and starts the Socket Mode event loop.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("auth test: %v", err)
		a.mu.Unlock()
		return fmt.Errorf("slack auth test: %w", err)
	}

	now := time.Now()
	a.mu.Lock()
	a.botUserID = auth.UserID
	a.connected = true
	a.connectedAt = now
	a.lastError = ""
	a.mu.Unlock()

	go a.handleEvents(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("slack socket mode error", zap.Error(err))
		}
	}()
	a.logger.Info("slack adapter connected via socket mode",
		zap.String("bot_user", auth.UserID))
	return nil
}

// handleEvents processes incoming Socket Mode events.
func (a *SlackAdapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.processEvent(evt)
		}
	}
}

func (a *SlackAdapter) processEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	a.socket.Ack(*evt.Request)

	if eventsAPI.Type != slackevents.CallbackEvent {
		return
	}
	inner, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Ignore bot messages to avoid loops
	if inner.BotID != "" || inner.User == a.BotUserID() {
		return
	}
	if a.handler == nil {
		return
	}
	a.handler(a.normalizeEvent(inner))
}

func (a *SlackAdapter) normalizeEvent(ev *slackevents.MessageEvent) *InboundMessage {
	msg := &InboundMessage{
		ID:          ev.TimeStamp,
		Platform:    "slack",
		ChannelID:   ev.Channel,
		ChannelName: a.channelName(ev.Channel),
		UserID:      ev.User,
		UserName:    a.userName(ev.User),
		Content:     stripSlackMentions(ev.Text),
		Timestamp:   slackTime(ev.TimeStamp),
	}
	if ev.ThreadTimeStamp != "" && ev.ThreadTimeStamp != ev.TimeStamp {
		msg.ReplyToID = ev.ThreadTimeStamp
	}
	botTag := "<@" + a.BotUserID() + ">"
	msg.BotMention = strings.Contains(ev.Text, botTag)
	for _, id := range mentionIDs(ev.Text) {
		if id != a.BotUserID() {
			msg.Mentions = append(msg.Mentions, id)
		}
	}
	return msg
}

// stripSlackMentions removes <@U123> mention tokens.
func stripSlackMentions(text string) string {
	out := text
	for _, id := range mentionIDs(text) {
		out = strings.ReplaceAll(out, "<@"+id+">", "")
	}
	return strings.TrimSpace(out)
}

// mentionIDs extracts user ids from <@U123> tokens.
func mentionIDs(text string) []string {
	var ids []string
	for {
		start := strings.Index(text, "<@")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], ">")
		if end < 0 {
			break
		}
		ids = append(ids, text[start+2:start+end])
		text = text[start+end+1:]
	}
	return ids
}

// slackTime parses a Slack "seconds.micros" timestamp.
func slackTime(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(sec, 0)
}

// slackTS renders a time as a Slack history cursor timestamp.
func slackTS(t time.Time) string {
	return fmt.Sprintf("%d.000000", t.Unix())
}

func (a *SlackAdapter) channelName(channelID string) string {
	a.mu.RLock()
	name, ok := a.channelNames[channelID]
	a.mu.RUnlock()
	if ok {
		return name
	}
	info, err := a.client.GetConversationInfo(&slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		return ""
	}
	a.mu.Lock()
	a.channelNames[channelID] = info.Name
	a.mu.Unlock()
	return info.Name
}

func (a *SlackAdapter) userName(userID string) string {
	if userID == "" {
		return ""
	}
	a.mu.RLock()
	name, ok := a.userNames[userID]
	a.mu.RUnlock()
	if ok {
		return name
	}
	info, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	name = info.Profile.DisplayName
	if name == "" {
		name = info.Name
	}
	a.mu.Lock()
	a.userNames[userID] = name
	a.mu.Unlock()
	return name
}

// Send posts a message, threading under ReplyTo when set.
func (a *SlackAdapter) Send(_ context.Context, msg *OutboundMessage) (string, error) {
	opts := []slack.MsgOption{
		slack.MsgOptionText(msg.Content, false),
	}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	_, ts, err := a.client.PostMessage(msg.ChannelID, opts...)
	if err != nil {
		a.logger.Error("slack send failed",
			zap.String("channel", msg.ChannelID), zap.Error(err))
		return "", fmt.Errorf("slack send: %w", err)
	}
	return ts, nil
}

// SendFile uploads a binary attachment.
func (a *SlackAdapter) SendFile(ctx context.Context, channelID string, file *FileUpload) error {
	_, err := a.client.UploadFileContext(ctx, slack.UploadFileParameters{
		Channel:        channelID,
		Filename:       file.Name,
		FileSize:       len(file.Data),
		Reader:         bytes.NewReader(file.Data),
		InitialComment: file.Caption,
	})
	if err != nil {
		return fmt.Errorf("slack file upload: %w", err)
	}
	return nil
}

// CreatePoll posts a formatted text ballot; Slack has no poll primitive.
func (a *SlackAdapter) CreatePoll(_ context.Context, channelID string, poll *PollSpec) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", poll.Question)
	for i, opt := range poll.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	fmt.Fprintf(&b, "_vote with a numbered reaction — closes in %s_", poll.Duration)
	_, _, err := a.client.PostMessage(channelID, slack.MsgOptionText(b.String(), false))
	if err != nil {
		return fmt.Errorf("slack poll: %w", err)
	}
	return nil
}

// Pin pins a message; already_pinned is treated as success.
func (a *SlackAdapter) Pin(_ context.Context, channelID, messageID string) error {
	err := a.client.AddPin(channelID, slack.ItemRef{
		Channel:   channelID,
		Timestamp: messageID,
	})
	if err != nil && !strings.Contains(err.Error(), "already_pinned") {
		return fmt.Errorf("slack pin: %w", err)
	}
	return nil
}

// FetchMessage retrieves one message by timestamp.
func (a *SlackAdapter) FetchMessage(ctx context.Context, channelID, messageID string) (*InboundMessage, error) {
	resp, err := a.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    messageID,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("slack fetch message %s: %w", messageID, err)
	}
	if len(resp.Messages) == 0 {
		return nil, fmt.Errorf("slack message %s not found", messageID)
	}
	return a.normalizeHistory(channelID, resp.Messages[0]), nil
}

// FetchHistory returns up to limit messages after the given time, oldest first.
func (a *SlackAdapter) FetchHistory(ctx context.Context, channelID string, limit int, after time.Time) ([]*InboundMessage, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	}
	if !after.IsZero() {
		params.Oldest = slackTS(after)
	}
	resp, err := a.client.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("slack history: %w", err)
	}
	// Slack returns newest first; reverse to chronological.
	out := make([]*InboundMessage, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		out = append(out, a.normalizeHistory(channelID, resp.Messages[i]))
	}
	return out, nil
}

func (a *SlackAdapter) normalizeHistory(channelID string, m slack.Message) *InboundMessage {
	msg := &InboundMessage{
		ID:          m.Timestamp,
		Platform:    "slack",
		ChannelID:   channelID,
		ChannelName: a.channelName(channelID),
		UserID:      m.User,
		UserName:    a.userName(m.User),
		Content:     stripSlackMentions(m.Text),
		FromBot:     m.BotID != "" || m.User == a.BotUserID(),
		Timestamp:   slackTime(m.Timestamp),
	}
	if m.ThreadTimestamp != "" && m.ThreadTimestamp != m.Timestamp {
		msg.ReplyToID = m.ThreadTimestamp
	}
	return msg
}

// Typing is a no-op; the Web API has no typing indicator.
func (a *SlackAdapter) Typing(_ context.Context, _ string) {}

// Close is a no-op; the socket context cancellation handles shutdown.
func (a *SlackAdapter) Close() error {
	return nil
}

func (a *SlackAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "slack",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		s.Details = "bot_user=" + a.botUserID
	}
	return s
}
