// Package models defines shared data types for the application.
package models

import (
	"time"
)

// PairStatus represents the replication state of a pair.
type PairStatus string

// PairStatus constants define the possible states of a pair.
const (
	PairStatusActive   PairStatus = "active"
	PairStatusInactive PairStatus = "inactive"
)

// Pair represents a source→destination replication binding with policy.
type Pair struct {
	ID              int64      `json:"id" gorm:"primaryKey"`
	SourceChat      int64      `json:"source_chat" gorm:"uniqueIndex:idx_pair_src_dst;index"`
	DestinationChat int64      `json:"destination_chat" gorm:"uniqueIndex:idx_pair_src_dst"`
	Name            string     `json:"name"`
	Status          PairStatus `json:"status" gorm:"index;default:active"`

	// SenderID pins the pair to a specific sender; nil means pool selection.
	SenderID *int64 `json:"sender_id,omitempty"`

	Filters FilterPolicy `json:"filters" gorm:"serializer:json"`
	Stats   PairStats    `json:"stats" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the pair participates in replication.
func (p *Pair) IsActive() bool {
	return p.Status == PairStatusActive
}

// FilterPolicy is the per-pair filtering and transform policy.
type FilterPolicy struct {
	BlockedWords       []string `json:"blocked_words"`
	RemoveMentions     bool     `json:"remove_mentions"`
	MentionPlaceholder string   `json:"mention_placeholder"`

	// anchored single patterns; empty disables
	HeaderPattern string `json:"header_pattern"`
	FooterPattern string `json:"footer_pattern"`

	// text length bounds after transforms; 0 means unbounded
	MinLength int `json:"min_length"`
	MaxLength int `json:"max_length"`

	AllowedMediaTypes []MediaTag `json:"allowed_media_types"`

	// 0 disables the age gate
	MaxAgeMinutes int `json:"max_age_minutes"`

	SyncEdits       bool `json:"sync_edits"`
	SyncDeletes     bool `json:"sync_deletes"`
	PreserveReplies bool `json:"preserve_replies"`

	WatermarkEnabled bool   `json:"watermark_enabled"`
	WatermarkText    string `json:"watermark_text"`
}

// DefaultFilterPolicy returns the policy applied to newly created pairs.
func DefaultFilterPolicy() FilterPolicy {
	return FilterPolicy{
		BlockedWords:       []string{},
		MentionPlaceholder: "",
		AllowedMediaTypes: []MediaTag{
			MediaText, MediaPhoto, MediaVideo, MediaDocument,
			MediaAudio, MediaVoice, MediaWebpage,
		},
		SyncEdits:       true,
		SyncDeletes:     false,
		PreserveReplies: true,
	}
}

// AllowsMedia reports whether the given tag passes the media-type gate.
func (f *FilterPolicy) AllowsMedia(tag MediaTag) bool {
	for _, t := range f.AllowedMediaTypes {
		if t == tag {
			return true
		}
	}
	return false
}

// PairStats carries per-pair replication counters.
type PairStats struct {
	MessagesCopied   int64  `json:"messages_copied"`
	MessagesFiltered int64  `json:"messages_filtered"`
	Errors           int64  `json:"errors"`
	RepliesPreserved int64  `json:"replies_preserved"`
	EditsSynced      int64  `json:"edits_synced"`
	DeletesSynced    int64  `json:"deletes_synced"`
	MentionsRemoved  int64  `json:"mentions_removed"`
	HeadersRemoved   int64  `json:"headers_removed"`
	FootersRemoved   int64  `json:"footers_removed"`
	WordsBlocked     int64  `json:"words_blocked"`
	ImagesBlocked    int64  `json:"images_blocked"`
	LastActivity     string `json:"last_activity,omitempty"`
}
