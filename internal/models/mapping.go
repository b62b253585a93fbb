package models

import "time"

// Mapping records one successful copy of a source message into a destination
// chat. The (source_msg_id, pair_id) key is unique: a source message maps to
// at most one destination message per pair.
type Mapping struct {
	ID          int64       `json:"id" gorm:"primaryKey"`
	SourceMsgID int         `json:"source_msg_id" gorm:"uniqueIndex:idx_map_src_pair"`
	PairID      int64       `json:"pair_id" gorm:"uniqueIndex:idx_map_src_pair;index:idx_map_dst_pair"`
	DestMsgID   int         `json:"dest_msg_id" gorm:"index:idx_map_dst_pair"`
	SenderID    int64       `json:"sender_id"`
	SourceChat  int64       `json:"source_chat"`
	DestChat    int64       `json:"dest_chat"`
	Kind        MessageKind `json:"kind"`
	HasMedia    bool        `json:"has_media"`

	// reply linkage, resolved at dispatch
	IsReply         bool `json:"is_reply"`
	ReplyToSourceID *int `json:"reply_to_source_id,omitempty"`
	ReplyToDestID   *int `json:"reply_to_dest_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
