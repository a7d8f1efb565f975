package gateway

import (
	"context"
	"time"
)

// Adapter defines the interface for chat platform adapters.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Close() error

	// OnMessage registers the handler invoked for every inbound message.
	OnMessage(handler MessageHandler)

	// BotUserID returns the platform user id of the bot itself, valid
	// after Connect.
	BotUserID() string

	Send(ctx context.Context, msg *OutboundMessage) (messageID string, err error)
	SendFile(ctx context.Context, channelID string, file *FileUpload) error
	CreatePoll(ctx context.Context, channelID string, poll *PollSpec) error
	Pin(ctx context.Context, channelID, messageID string) error

	// FetchMessage retrieves a single message by id, used for reply-chain
	// walks.
	FetchMessage(ctx context.Context, channelID, messageID string) (*InboundMessage, error)

	// FetchHistory returns up to limit messages posted after the given
	// time, oldest first.
	FetchHistory(ctx context.Context, channelID string, limit int, after time.Time) ([]*InboundMessage, error)

	// Typing signals activity in a channel while a slow action runs.
	// Best-effort; adapters may no-op.
	Typing(ctx context.Context, channelID string)
}

// MessageHandler processes inbound messages from any platform.
type MessageHandler func(msg *InboundMessage)

// InboundMessage is a normalized message event from any platform.
type InboundMessage struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	Content     string    `json:"content"`
	Mentions    []string  `json:"mentions,omitempty"`
	ReplyToID   string    `json:"reply_to_id,omitempty"`
	BotMention  bool      `json:"bot_mention"`
	FromBot     bool      `json:"from_bot"`
	Timestamp   time.Time `json:"timestamp"`
}

// OutboundMessage is a text message sent to a platform channel.
type OutboundMessage struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
}

// FileUpload is a binary attachment with an optional caption.
type FileUpload struct {
	Name    string
	Data    []byte
	Caption string
}

// PollSpec describes a platform-native poll.
type PollSpec struct {
	Question string
	Options  []string
	Duration time.Duration
}

// AdapterStatus reports an adapter's connection state for the ops API.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
}
