package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/store"
)

// Memory is the durable per-user fact layer. Reads degrade gracefully:
// if the store is unreachable the bot proceeds without personalization
// rather than failing the message.
type Memory struct {
	store     *store.Store
	retention RetentionPolicy
	logger    *zap.Logger
}

// New creates a Memory over the given store. A nil store runs the bot
// stateless: every read comes back empty and writes are dropped. A
// zero-horizon policy keeps facts forever.
func New(st *store.Store, retention RetentionPolicy, logger *zap.Logger) *Memory {
	return &Memory{store: st, retention: retention, logger: logger}
}

// Facts returns everything remembered about a user. Store errors are
// logged and reported as an empty fact list.
func (m *Memory) Facts(ctx context.Context, userID string) []Fact {
	if m.store == nil {
		return nil
	}
	rows, err := m.store.GetFacts(ctx, userID)
	if err != nil {
		m.logger.Warn("Fact lookup failed, proceeding without memory",
			zap.String("user", userID),
			zap.Error(err))
		return nil
	}
	facts := make([]Fact, 0, len(rows))
	for _, r := range rows {
		facts = append(facts, Fact{Key: r.Key, Value: r.Text, UpdatedAt: r.UpdatedAt})
	}
	return facts
}

// Notes renders a user's facts as one line per fact, or "" when nothing
// is known.
func (m *Memory) Notes(ctx context.Context, userID string) string {
	return renderFacts(m.Facts(ctx, userID))
}

// maxRosterUsers caps how many users AllNotes renders; the roster feeds a
// prompt, not a report.
const maxRosterUsers = 50

// AllNotes returns rendered notes for every known user who has any,
// excluding excludeUserID. Most recently seen users come first. Store
// errors degrade to an empty roster.
func (m *Memory) AllNotes(ctx context.Context, excludeUserID string) []UserNotes {
	if m.store == nil {
		return nil
	}
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		m.logger.Warn("User roster lookup failed", zap.Error(err))
		return nil
	}
	var out []UserNotes
	for _, u := range users {
		if u.ID == excludeUserID {
			continue
		}
		notes := m.Notes(ctx, u.ID)
		if notes == "" {
			continue
		}
		out = append(out, UserNotes{UserID: u.ID, Username: u.Name, Notes: notes})
		if len(out) >= maxRosterUsers {
			break
		}
	}
	return out
}

// Remember stores one fact about a user, creating the user row if needed.
// Same-key writes are last-writer-wins on the database clock.
func (m *Memory) Remember(ctx context.Context, userID, username, key, value string) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.TouchUser(ctx, userID, username); err != nil {
		return err
	}
	if err := m.store.UpsertFact(ctx, userID, key, value); err != nil {
		return fmt.Errorf("remember %s: %w", key, err)
	}
	return nil
}

// Touch records that a user was seen without writing any facts.
func (m *Memory) Touch(ctx context.Context, userID, username string) error {
	if m.store == nil {
		return nil
	}
	return m.store.TouchUser(ctx, userID, username)
}

// Prune applies the retention policy. A no-op under the default policy.
func (m *Memory) Prune(ctx context.Context) error {
	cutoff := m.retention.Cutoff(time.Now())
	if cutoff.IsZero() || m.store == nil {
		return nil
	}
	n, err := m.store.DeleteFactsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("Pruned expired facts", zap.Int64("count", n))
	}
	return nil
}

func renderFacts(facts []Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range facts {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
