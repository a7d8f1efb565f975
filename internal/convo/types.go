// Package convo reconstructs the conversation context for one exchange:
// either the reply chain the message sits on, or a recent window of the
// channel. Context is built fresh per dispatch and never persisted.
package convo

import (
	"strings"
	"time"
)

// Turn is one utterance in a conversation. MessageID is the platform
// message id when known; cached bot turns may not have one.
type Turn struct {
	MessageID string    `json:"message_id,omitempty"`
	Speaker   string    `json:"speaker"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	FromBot   bool      `json:"from_bot"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered sequence of turns, oldest first.
type Conversation []Turn

// Text flattens the conversation for keyword extraction and retrieval.
func (c Conversation) Text() string {
	var b strings.Builder
	for i, t := range c {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

// Last returns the most recent turn, or a zero Turn for an empty conversation.
func (c Conversation) Last() Turn {
	if len(c) == 0 {
		return Turn{}
	}
	return c[len(c)-1]
}
