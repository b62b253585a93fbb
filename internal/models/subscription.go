package models

import "time"

// Subscription grants a user timed access to the destination chats. The
// expiry sweeper removes the user from every destination before deleting
// the record.
type Subscription struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    int64     `json:"user_id" gorm:"uniqueIndex"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
	AddedBy   int64     `json:"added_by"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the subscription has lapsed at the given time.
func (s *Subscription) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
