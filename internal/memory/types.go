package memory

import (
	"time"
)

// Fact is a single remembered key/value pair about a user.
type Fact struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserNotes pairs a display name with the rendered facts held about them.
type UserNotes struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Notes    string `json:"notes"`
}

// RetentionPolicy decides how long facts are kept. The zero horizon
// means facts are kept forever.
type RetentionPolicy struct {
	Horizon time.Duration
}

// KeepForever retains all facts indefinitely.
func KeepForever() RetentionPolicy {
	return RetentionPolicy{}
}

// RetainFor keeps facts for the given duration past their last update.
func RetainFor(d time.Duration) RetentionPolicy {
	return RetentionPolicy{Horizon: d}
}

// Cutoff returns the oldest permitted update time, or the zero time if
// facts are kept forever.
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	if p.Horizon <= 0 {
		return time.Time{}
	}
	return now.Add(-p.Horizon)
}
