package models

import "time"

// Sender is a sending identity. The credential is an opaque session string
// for the underlying platform client.
type Sender struct {
	ID            int64      `json:"id" gorm:"primaryKey"`
	DisplayHandle string     `json:"display_handle" gorm:"uniqueIndex"`
	Credential    string     `json:"-"`
	Enabled       bool       `json:"enabled" gorm:"default:true"`
	UsageCount    int64      `json:"usage_count"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
