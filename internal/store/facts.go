package store

import (
	"context"
	"fmt"
	"time"
)

// FactRow is one remembered fact about a user. Facts accumulate by key:
// writes append or overwrite, never delete. Concurrent writes to the same
// (user, key) resolve last-writer-wins ordered by the database wall clock
// (the now() in the upsert statement).
type FactRow struct {
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertFact appends or overwrites one fact. The single-statement upsert
// gives per-(user, key) atomicity.
func (s *Store) UpsertFact(ctx context.Context, userID, key, text string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_facts (user_id, key, text, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO UPDATE SET
			text = EXCLUDED.text,
			updated_at = now()`,
		userID, key, text,
	)
	if err != nil {
		return fmt.Errorf("upsert fact %s/%s: %w", userID, key, err)
	}
	return nil
}

// GetFacts returns all facts for a user ordered by key.
func (s *Store) GetFacts(ctx context.Context, userID string) ([]FactRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, key, text, updated_at
		FROM user_facts
		WHERE user_id = $1
		ORDER BY key ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("get facts %s: %w", userID, err)
	}
	defer rows.Close()

	var facts []FactRow
	for rows.Next() {
		var f FactRow
		if err := rows.Scan(&f.UserID, &f.Key, &f.Text, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// DeleteFactsBefore removes facts older than the cutoff. Invoked only by a
// retention policy; the default policy never calls it.
func (s *Store) DeleteFactsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM user_facts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete facts before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
