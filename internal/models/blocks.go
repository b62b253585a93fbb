package models

import "time"

// BlockScope declares whether a block applies to all pairs or a single one.
type BlockScope string

// BlockScope constants.
const (
	ScopeGlobal BlockScope = "global"
	ScopePair   BlockScope = "pair"
)

// BlockedImage is a perceptual-hash block entry. PHash stores the 64-bit
// hash bit pattern as int64 so it fits every backend's integer column;
// convert with uint64(e.PHash) before computing distances.
type BlockedImage struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	PHash       int64      `json:"phash" gorm:"uniqueIndex:idx_img_hash_pair;index:idx_img_hash_scope"`
	Scope       BlockScope `json:"scope" gorm:"index:idx_img_hash_scope"`
	PairID      *int64     `json:"pair_id,omitempty" gorm:"uniqueIndex:idx_img_hash_pair"`
	Threshold   int        `json:"threshold"`
	Description string     `json:"description,omitempty"`
	BlockedBy   string     `json:"blocked_by,omitempty"`
	UsageCount  int64      `json:"usage_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// BlockedWord is a word-block entry; a nil PairID makes it global.
type BlockedWord struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Word      string    `json:"word" gorm:"uniqueIndex:idx_word_pair"`
	PairID    *int64    `json:"pair_id,omitempty" gorm:"uniqueIndex:idx_word_pair"`
	CreatedAt time.Time `json:"created_at"`
}

// Setting is a durable key/value record.
type Setting struct {
	Key   string `json:"key" gorm:"primaryKey"`
	Value string `json:"value"`
}
