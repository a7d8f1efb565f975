package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
)

// nameMatchThreshold is the minimum similarity (0-100) between a message
// word and a username before the user counts as referenced.
const nameMatchThreshold = 80

var mentionRe = regexp.MustCompile(`<@!?(\d+)>`)

// MentionedIDs extracts platform user IDs from inline mention markup.
func MentionedIDs(text string) []string {
	var ids []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// ReferencedUsers finds users a message talks about: explicit mentions
// by ID, then fuzzy matching of known usernames against the message
// words. The author is excluded. Only users with stored facts are
// returned. Errors are logged and reported as no references.
func (m *Memory) ReferencedUsers(ctx context.Context, text, excludeUserID string, mentionedIDs []string) []UserNotes {
	if m.store == nil {
		return nil
	}
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		m.logger.Warn("User lookup failed, skipping references", zap.Error(err))
		return nil
	}

	mentioned := make(map[string]bool, len(mentionedIDs))
	for _, id := range mentionedIDs {
		mentioned[id] = true
	}

	textLower := strings.ToLower(text)
	words := tokenize(textLower)

	var out []UserNotes
	for _, u := range users {
		if u.ID == excludeUserID || u.Name == "" {
			continue
		}
		if !mentioned[u.ID] && !nameAppears(u.Name, textLower, words) {
			continue
		}
		notes := m.Notes(ctx, u.ID)
		if notes == "" {
			continue
		}
		out = append(out, UserNotes{UserID: u.ID, Username: u.Name, Notes: notes})
	}
	return out
}

// nameAppears reports whether a username shows up in the text, either as
// a substring or as a close fuzzy match of a single word.
func nameAppears(name, textLower string, words []string) bool {
	nameLower := strings.ToLower(name)
	if strings.Contains(textLower, nameLower) {
		return true
	}
	for _, w := range words {
		if len(w) >= 3 && similarity(nameLower, w) >= nameMatchThreshold {
			return true
		}
	}
	return false
}

// similarity is a 0-100 edit-distance score between two strings.
func similarity(a, b string) int {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (longest - dist) * 100 / longest
}

// tokenize splits text into lowercase word tokens, dropping single chars.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' ||
			r > 127)
	})
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}
