package store

import (
	"context"
	"fmt"
	"time"
)

// UserRow represents a known user. Users are created on first interaction
// and never deleted.
type UserRow struct {
	ID       string    `json:"id"` // opaque platform user id
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
}

// TouchUser upserts a user and refreshes their last-seen timestamp.
func (s *Store) TouchUser(ctx context.Context, userID, name string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, name, last_seen)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			last_seen = now()`,
		userID, name,
	)
	if err != nil {
		return fmt.Errorf("touch user %s: %w", userID, err)
	}
	return nil
}

// GetUser retrieves a single user.
func (s *Store) GetUser(ctx context.Context, userID string) (*UserRow, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, last_seen FROM users WHERE id = $1`, userID)

	var u UserRow
	if err := row.Scan(&u.ID, &u.Name, &u.LastSeen); err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

// ListUsers returns all known users, most recently seen first.
func (s *Store) ListUsers(ctx context.Context) ([]UserRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, last_seen FROM users ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []UserRow
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(&u.ID, &u.Name, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
