package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Gate decides whether the bot engages with a message at all. It never
// produces output: a rejected message is dropped silently.
type Gate struct {
	pattern *regexp.Regexp
}

// NewGate compiles the channel activation pattern. Matching is
// case-insensitive against the channel name.
func NewGate(pattern string) (*Gate, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("activation pattern: %w", err)
	}
	return &Gate{pattern: re}, nil
}

// Allow reports whether the bot should engage. The channel name must
// match the activation pattern, unless the message replies to one of
// the bot's own messages (an existing thread follows the bot across
// channels). Either way the bot must be addressed: mentioned or replied
// to.
func (g *Gate) Allow(channelName string, botMention, replyToBot bool) bool {
	if !botMention && !replyToBot {
		return false
	}
	if replyToBot {
		return true
	}
	return g.pattern.MatchString(strings.ToLower(channelName))
}
