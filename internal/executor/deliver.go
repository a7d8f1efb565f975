package executor

import (
	"context"
	"regexp"
	"unicode/utf8"

	"github.com/snarkbot/snark/internal/gateway"
)

// maxMessageLen is the platform ceiling for one outbound message.
const maxMessageLen = 2000

var (
	massPingRe = regexp.MustCompile(`@everyone|@here|<@&\d+>`)
	userPingRe = regexp.MustCompile(`<@!?(\d+)>`)
)

// sanitizeReply strips mass pings and any user mention except the person
// who invoked the bot.
func sanitizeReply(text, allowedUserID string) string {
	text = massPingRe.ReplaceAllString(text, "")
	return userPingRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := userPingRe.FindStringSubmatch(m)
		if len(sub) == 2 && sub[1] == allowedUserID {
			return m
		}
		return ""
	})
}

// reply sends text back to the triggering message, sanitized, split into
// platform-sized chunks. The first chunk is a threaded reply; overflow
// chunks go to the channel plain.
func reply(ctx context.Context, gw *gateway.Gateway, msg *gateway.InboundMessage, text string) error {
	text = sanitizeReply(text, msg.UserID)
	replyTo := msg.ID
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxMessageLen {
			cut := maxMessageLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			chunk = text[:cut]
		}
		text = text[len(chunk):]
		_, err := gw.Send(ctx, &gateway.OutboundMessage{
			Platform:  msg.Platform,
			ChannelID: msg.ChannelID,
			Content:   chunk,
			ReplyTo:   replyTo,
		})
		if err != nil {
			return err
		}
		replyTo = ""
	}
	return nil
}
